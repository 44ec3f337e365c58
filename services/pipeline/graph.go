package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Node interface {
	Name() string
	// Owns lists the state keys the node may write.
	Owns() []string
	Run(ctx context.Context, st State) (Update, error)
}

// GateResult carries the outcome of the suspension point. A nil Decision
// parks the graph until an external decision arrives.
type GateResult struct {
	Decision   *Decision
	Assessment *Assessment
}

type Gate interface {
	Evaluate(ctx context.Context, st State) (GateResult, error)
}

// Observer is notified around every node execution. An error returned by
// either hook stops the graph.
type Observer interface {
	NodeStarted(ctx context.Context, node string, st State) error
	NodeFinished(ctx context.Context, node string, in State, out Update, took time.Duration, err error) error
}

// NodeError wraps a failure raised by a node body.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string { return fmt.Sprintf("node %s: %v", e.Node, e.Err) }
func (e *NodeError) Unwrap() error { return e.Err }

var ErrNotSuspended = errors.New("pipeline: graph is not suspended at that node")

// Result is where a run of the graph stopped.
type Result struct {
	State     State
	Suspended bool
	// Next is the node that runs once the suspension is resolved.
	Next string
}

// Graph is an ordered list of nodes with one suspension point placed
// before the node named interruptBefore.
type Graph struct {
	name            string
	nodes           []Node
	interruptBefore string
	gate            Gate
}

func NewGraph(name string, gate Gate, interruptBefore string, nodes ...Node) *Graph {
	return &Graph{name: name, nodes: nodes, interruptBefore: interruptBefore, gate: gate}
}

func (g *Graph) Name() string { return g.name }

// InterruptBefore names the node guarded by the suspension point.
func (g *Graph) InterruptBefore() string { return g.interruptBefore }

func (g *Graph) NodeNames() []string {
	out := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Name()
	}
	return out
}

// Run executes the graph from the first node.
func (g *Graph) Run(ctx context.Context, st State, obs Observer) (Result, error) {
	return g.run(ctx, st, 0, false, obs)
}

// Resume continues a suspended graph at next with the given decision. Only
// approvals resume execution.
func (g *Graph) Resume(ctx context.Context, st State, next string, d Decision, obs Observer) (Result, error) {
	if next != g.interruptBefore {
		return Result{State: st}, ErrNotSuspended
	}
	if d.Action != ActionApprove {
		return Result{State: st}, fmt.Errorf("pipeline: cannot resume with %q", d.Action)
	}
	idx := g.index(next)
	if idx < 0 {
		return Result{State: st}, ErrNotSuspended
	}
	st = st.Clone()
	st.Decision = &d
	return g.run(ctx, st, idx, true, obs)
}

func (g *Graph) index(name string) int {
	for i, n := range g.nodes {
		if n.Name() == name {
			return i
		}
	}
	return -1
}

func (g *Graph) run(ctx context.Context, st State, start int, resumed bool, obs Observer) (Result, error) {
	for i := start; i < len(g.nodes); i++ {
		if err := ctx.Err(); err != nil {
			return Result{State: st}, err
		}
		n := g.nodes[i]

		if n.Name() == g.interruptBefore && !(resumed && i == start) {
			gr, err := g.gate.Evaluate(ctx, st.Clone())
			if err != nil {
				return Result{State: st}, err
			}
			if gr.Assessment != nil {
				a := *gr.Assessment
				st.Assessment = &a
			}
			if gr.Decision == nil || gr.Decision.Action != ActionApprove {
				return Result{State: st, Suspended: true, Next: n.Name()}, nil
			}
			d := *gr.Decision
			st.Decision = &d
		}

		if obs != nil {
			if err := obs.NodeStarted(ctx, n.Name(), st); err != nil {
				return Result{State: st}, err
			}
		}

		began := time.Now()
		upd, err := n.Run(ctx, st.Clone())
		next := st
		if err == nil {
			next, err = st.Apply(upd, n.Owns())
		}
		took := time.Since(began)

		if obs != nil {
			if oerr := obs.NodeFinished(ctx, n.Name(), st, upd, took, err); oerr != nil && err == nil {
				return Result{State: next}, oerr
			}
		}
		if err != nil {
			return Result{State: st}, &NodeError{Node: n.Name(), Err: err}
		}
		st = next
	}
	return Result{State: st}, nil
}

// MarshalJSON emits only the keys u sets.
func (u Update) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 4)
	if u.Topic != nil {
		m[KeyTopic] = *u.Topic
	}
	if u.Platforms != nil {
		m[KeyPlatforms] = u.Platforms
	}
	if u.Tone != nil {
		m[KeyTone] = *u.Tone
	}
	if u.Plan != nil {
		m[KeyPlan] = *u.Plan
	}
	if u.Drafts != nil {
		m[KeyDrafts] = u.Drafts
	}
	if u.Assessment != nil {
		m[KeyAssessment] = u.Assessment
	}
	if u.ReviewResult != nil {
		m[KeyReviewResult] = u.ReviewResult
	}
	return json.Marshal(m)
}
