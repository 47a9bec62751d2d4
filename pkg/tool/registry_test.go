package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/adforge/copybot/pkg/tool"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type stubTool struct {
	name    string
	execute func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (s *stubTool) Spec() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: s.name}
}

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return s.execute(ctx, args)
}

func TestRegistry(t *testing.T) {
	r := tool.New(
		&stubTool{name: "first", execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args["value"]}, nil
		}},
		&stubTool{name: "second", execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("boom")
		}},
	)
	ctx := context.Background()

	gt.Equal(t, r.Names(), []string{"first", "second"})

	specs := r.Specs("second")
	gt.A(t, specs).Length(1)
	gt.A(t, specs[0].FunctionDeclarations).Length(1)
	gt.Equal(t, specs[0].FunctionDeclarations[0].Name, "second")
	gt.A(t, r.Specs()[0].FunctionDeclarations).Length(2)
	gt.Nil(t, r.Specs("missing"))

	resp, err := r.Execute(ctx, genai.FunctionCall{ID: "1", Name: "first", Args: map[string]any{"value": "x"}})
	gt.NoError(t, err)
	gt.Equal(t, resp.ID, "1")
	gt.Equal(t, resp.Response["echo"], any("x"))

	resp, err = r.Execute(ctx, genai.FunctionCall{Name: "second"})
	gt.Error(t, err)
	gt.S(t, resp.Response["error"].(string)).Contains("boom")

	_, err = r.Execute(ctx, genai.FunctionCall{Name: "unknown"})
	gt.True(t, errors.Is(err, tool.ErrToolNotFound))
}

func TestArgs(t *testing.T) {
	args := map[string]any{"s": "  hi ", "f": float64(3), "frac": 2.5, "n": "x"}
	gt.Equal(t, tool.String(args, "s"), "hi")
	gt.Equal(t, tool.String(args, "f"), "")

	v, ok := tool.Int(args, "f")
	gt.True(t, ok)
	gt.Equal(t, v, 3)
	_, ok = tool.Int(args, "frac")
	gt.False(t, ok)
	_, ok = tool.Int(args, "n")
	gt.False(t, ok)
}
