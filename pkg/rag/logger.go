package rag

import (
	"fmt"

	"go.uber.org/zap"
)

func loggerOrDefault(loggers []*zap.Logger) (*zap.Logger, error) {
	if len(loggers) > 0 && loggers[0] != nil {
		return loggers[0], nil
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
