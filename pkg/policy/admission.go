// Package policy evaluates the operator's Rego admission rules for incoming events.
//
// A policy lives in package "admission" and may define:
//
//	allow  (boolean, default true)
//	reason (string, logged when an event is denied)
//
// The input document is built by Input.
package policy

import (
	"context"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

const admissionQuery = "data.admission"

type Decision struct {
	Allow  bool
	Reason string
}

// Admission evaluates events against a prepared query. The zero value and a nil
// pointer admit everything.
type Admission struct {
	query *rego.PreparedEvalQuery
}

// printHook forwards Rego print() output to the request logger
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Load prepares the admission policy at path. An empty path yields a policy that admits
// everything.
func Load(ctx context.Context, path string) (*Admission, error) {
	if path == "" {
		return &Admission{}, nil
	}
	modules, err := readModules(path)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return &Admission{}, nil
	}
	return compile(ctx, modules)
}

// FromSource prepares a policy from an inline module
func FromSource(ctx context.Context, name, src string) (*Admission, error) {
	return compile(ctx, []func(*rego.Rego){rego.Module(name, src)})
}

func compile(ctx context.Context, modules []func(*rego.Rego)) (*Admission, error) {
	q, err := prepareQuery(ctx, modules, admissionQuery)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare admission policy")
	}
	return &Admission{query: q}, nil
}

// Input is the document handed to the policy as `input`
func Input(ev *model.EventContext) map[string]any {
	in := map[string]any{
		"kind":         string(ev.Kind),
		"workspace_id": ev.WorkspaceID,
		"channel_id":   ev.ChannelID,
		"actor_id":     ev.ActorID,
		"text":         ev.Text,
		"is_dm":        ev.IsDM,
		"is_thread":    ev.IsThread,
	}
	if ev.File != nil {
		in["file"] = map[string]any{
			"name":      ev.File.Name,
			"mime_type": ev.File.MIMEType,
			"size":      ev.File.Size,
		}
	}
	return in
}

func (x *Admission) Admit(ctx context.Context, ev *model.EventContext) (*Decision, error) {
	if x == nil || x.query == nil {
		return &Decision{Allow: true}, nil
	}

	rs, err := x.query.Eval(ctx, rego.EvalInput(Input(ev)), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate admission policy")
	}

	decision := &Decision{Allow: true}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return decision, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return nil, goerr.New("admission result is not an object")
	}
	if v, ok := data["allow"]; ok {
		allow, ok := v.(bool)
		if !ok {
			return nil, goerr.New("admission allow is not a boolean", goerr.V("allow", v))
		}
		decision.Allow = allow
	}
	if reason, ok := data["reason"].(string); ok {
		decision.Reason = reason
	}
	return decision, nil
}
