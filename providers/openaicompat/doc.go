// Package openaicompat implements the shared adapter base for providers that
// speak the OpenAI chat completions wire format. Concrete adapters embed
// Provider and customize the name, base URL, default model and headers.
package openaicompat
