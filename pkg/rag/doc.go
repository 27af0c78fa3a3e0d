/*
Package rag provides the building blocks of a retrieval-augmented generation
(RAG) pipeline on top of PostgreSQL (pgvector) and an Ollama-compatible model
server.

Documents are split into overlapping chunks by a Chunker, embedded by an
Embedder, and persisted into a VectorStore by an Ingestor. A Querier embeds a
question, retrieves the nearest chunks, assembles a prompt from them and asks a
Generator for the answer.

Concrete implementations live in sub-packages: ollama (Embedder, Generator),
pgvector and memory (VectorStore), and loader (Loader).
*/
package rag
