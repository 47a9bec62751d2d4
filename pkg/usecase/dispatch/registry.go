package dispatch

import (
	"sort"

	"github.com/adforge/copybot/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Registry maps agent names to handlers. It is built once and never modified.
type Registry struct {
	agents map[model.AgentName]model.Agent
}

// Entry pairs a name with its agent for NewRegistry
type Entry struct {
	Name  model.AgentName
	Agent model.Agent
}

func NewRegistry(entries ...Entry) (*Registry, error) {
	agents := make(map[model.AgentName]model.Agent, len(entries))
	for _, e := range entries {
		if e.Agent == nil {
			return nil, goerr.New("agent is nil", goerr.V("name", e.Name))
		}
		if _, ok := agents[e.Name]; ok {
			return nil, goerr.New("agent registered twice", goerr.V("name", e.Name))
		}
		agents[e.Name] = e.Agent
	}
	return &Registry{agents: agents}, nil
}

func (x *Registry) Get(name model.AgentName) (model.Agent, bool) {
	a, ok := x.agents[name]
	return a, ok
}

func (x *Registry) Names() []model.AgentName {
	names := make([]model.AgentName, 0, len(x.agents))
	for n := range x.agents {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
