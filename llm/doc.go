// Package llm defines the provider-agnostic adapter contract: the normalized
// chat request/response types and the Provider interface every concrete
// adapter implements. The conversation engine depends only on this package;
// provider wire schemas stay inside the providers tree.
package llm
