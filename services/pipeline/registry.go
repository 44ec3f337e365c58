package pipeline

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"openpaws/pkg/errutil"
	"openpaws/services/llm"

	"github.com/go-playground/validator/v10"
)

const AgentContentPipeline = "content_pipeline"

// Agent is a runnable agent type: it validates its input and owns a graph.
type Agent interface {
	Type() string
	Decode(raw json.RawMessage) (State, error)
	Graph() *Graph
}

type Registry struct {
	agents map[string]Agent
}

func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Type()] = a
	}
	return r
}

func (r *Registry) Lookup(agentType string) (Agent, error) {
	a, ok := r.agents[agentType]
	if !ok {
		return nil, errutil.BadRequest("unknown agent type", nil,
			errutil.WithDetails(errutil.Detail{Field: "agent_type", Message: "supported: " + strings.Join(r.Types(), ", ")}))
	}
	return a, nil
}

func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.agents))
	for t := range r.agents {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type ContentInput struct {
	Topic           string   `json:"topic" validate:"required,max=1000"`
	Platforms       []string `json:"platforms" validate:"required,min=1,dive,oneof=twitter linkedin instagram facebook tiktok youtube"`
	Tone            string   `json:"tone" validate:"omitempty,max=64"`
	CampaignID      string   `json:"campaign_id" validate:"omitempty,max=64"`
	RequireApproval bool     `json:"require_approval"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

type contentAgent struct {
	graph *Graph
}

// NewContentAgent wires planner, creator and reviewer with the suspension
// point before the reviewer.
func NewContentAgent(client llm.Client, gate Gate) Agent {
	return &contentAgent{
		graph: NewGraph(AgentContentPipeline, gate, NodeReviewer,
			NewPlanner(client),
			NewCreator(client),
			NewReviewer(),
		),
	}
}

func (a *contentAgent) Type() string  { return AgentContentPipeline }
func (a *contentAgent) Graph() *Graph { return a.graph }

func (a *contentAgent) Decode(raw json.RawMessage) (State, error) {
	var in ContentInput
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return State{}, errutil.BadRequest("input_data is not a valid object", err)
	}
	if err := validate.Struct(in); err != nil {
		return State{}, errutil.FromBinding(err)
	}
	return State{
		Topic:           strings.TrimSpace(in.Topic),
		Platforms:       dedupe(in.Platforms),
		Tone:            in.Tone,
		CampaignID:      in.CampaignID,
		RequireApproval: in.RequireApproval,
		Drafts:          []Draft{},
	}, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
