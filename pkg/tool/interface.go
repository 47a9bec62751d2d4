// Package tool holds the function-calling tools offered to the LLM and a registry that
// dispatches function calls to them.
package tool

import (
	"context"

	"google.golang.org/genai"
)

// Tool is one function the LLM can call
type Tool interface {
	// Spec returns the function declaration for Gemini function calling
	Spec() *genai.FunctionDeclaration

	// Execute runs the tool with the arguments of a function call. The returned map becomes
	// the function response. An error is reported to the model as {"error": ...}.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}
