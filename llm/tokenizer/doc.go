// Package tokenizer provides model-aware token counting used by the optional
// token-budget trimming of conversation context snapshots. OpenAI-family
// models get a real tiktoken encoding; everything else falls back to the
// character-based estimator in types.
package tokenizer
