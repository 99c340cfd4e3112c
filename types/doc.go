// Package types provides core types used across the duotalk engine.
// This package has ZERO dependencies on other duotalk packages to avoid
// circular imports. All other packages should import types from here.
//
// The package defines:
//   - Message and Role: the normalized {role, text} record that flows through
//     the whole pipeline; provider-specific fields never leak into it.
//   - Error: structured errors with a unified code, retryability flag and
//     provider attribution.
//   - AgentConfig and SessionConfig: immutable per-agent and per-session
//     configuration validated before any network call.
//   - Tokenizer: token counting for the optional context-budget trimming.
package types
