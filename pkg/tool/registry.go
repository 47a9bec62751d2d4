package tool

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

var ErrToolNotFound = goerr.New("tool not found")

// Registry maps function names to tools. Tools are kept in registration order so that the
// declarations sent to the model are stable across turns.
type Registry struct {
	tools map[string]Tool
	order []string
}

// New creates a new tool registry with the given tools
func New(tools ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		name := t.Spec().Name
		if _, dup := r.tools[name]; !dup {
			r.order = append(r.order, name)
		}
		r.tools[name] = t
	}
	return r
}

// Names returns every registered function name
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specs returns a single genai.Tool declaring the named functions, or every function when no
// name is given.
func (r *Registry) Specs(names ...string) []*genai.Tool {
	if len(names) == 0 {
		names = r.order
	}

	var decls []*genai.FunctionDeclaration
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			decls = append(decls, t.Spec())
		}
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Execute runs the tool with the given function call. Tool errors are returned both as the
// error and as an {"error": ...} function response so the caller can feed it back.
func (r *Registry) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	t, ok := r.tools[fc.Name]
	if !ok {
		err := goerr.Wrap(ErrToolNotFound, "unknown function", goerr.V("name", fc.Name))
		return errorResponse(fc, err), err
	}

	result, err := t.Execute(ctx, fc.Args)
	if err != nil {
		return errorResponse(fc, err), goerr.Wrap(err, "tool execution failed", goerr.V("name", fc.Name))
	}

	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: result,
	}, nil
}

func errorResponse(fc genai.FunctionCall, err error) *genai.FunctionResponse {
	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: map[string]any{"error": err.Error()},
	}
}
