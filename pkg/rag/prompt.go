package rag

import "strings"

// Placeholders recognised by AssemblePrompt.
const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

// DefaultPromptTemplate asks for a short answer grounded in the retrieved context.
const DefaultPromptTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
Use three sentences maximum and keep the answer concise.

Context: {context}

Question: {question}

Helpful Answer:`

// AssemblePrompt joins contexts in order, separated by blank lines, and substitutes them
// and the question into template. An empty template falls back to DefaultPromptTemplate.
// Placeholders appearing inside the substituted values are left untouched.
func AssemblePrompt(template string, contexts []string, question string) string {
	if template == "" {
		template = DefaultPromptTemplate
	}
	r := strings.NewReplacer(
		ContextPlaceholder, strings.Join(contexts, "\n\n"),
		QuestionPlaceholder, question,
	)
	return r.Replace(template)
}
