package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"openpaws/pkg/errutil"
	"openpaws/pkg/featureflags"
	"openpaws/pkg/tenancy"
	"openpaws/services/llm"
	"openpaws/services/llm/mock"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type recorder struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (r *recorder) NodeStarted(_ context.Context, node string, _ State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, node)
	return nil
}

func (r *recorder) NodeFinished(_ context.Context, node string, _ State, _ Update, _ time.Duration, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.finished = append(r.finished, node+":"+status)
	return nil
}

// scripted answers planner and creator calls, and returns verdict for the
// review call.
func scripted(t *testing.T, verdict string) *mock.MockClient {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req llm.Request) (*llm.Response, error) {
			switch req.Operation {
			case NodePlanner:
				return &llm.Response{Content: "1. hook\n2. message"}, nil
			case NodeCreator:
				platform := "unknown"
				for _, p := range []string{"Twitter", "Linkedin"} {
					if strings.Contains(req.System, p) {
						platform = p
					}
				}
				return &llm.Response{Content: fmt.Sprintf("%s post #Launch #launch #AI", platform)}, nil
			case NodeReviewer:
				require.True(t, req.JSON)
				return &llm.Response{Content: verdict}, nil
			}
			return nil, fmt.Errorf("unexpected operation %q", req.Operation)
		}).AnyTimes()
	return client
}

func input(t *testing.T, extra string) State {
	t.Helper()
	raw := `{"topic":"product launch","platforms":["twitter","linkedin"],"tone":"playful"` + extra + `}`
	st, err := NewContentAgent(nil, NewManualGate()).Decode(json.RawMessage(raw))
	require.NoError(t, err)
	return st
}

func TestManualGateSuspendsBeforeReviewer(t *testing.T) {
	client := scripted(t, "")
	g := NewContentAgent(client, NewManualGate()).Graph()
	obs := &recorder{}

	res, err := g.Run(context.Background(), input(t, ""), obs)
	require.NoError(t, err)
	require.True(t, res.Suspended)
	require.Equal(t, NodeReviewer, res.Next)
	require.Equal(t, []string{NodePlanner, NodeCreator}, obs.started)
	require.Equal(t, "1. hook\n2. message", res.State.Plan)
	require.Len(t, res.State.Drafts, 2)
	require.Equal(t, "twitter", res.State.Drafts[0].Platform)
	require.Equal(t, "linkedin", res.State.Drafts[1].Platform)
	require.Equal(t, []string{"#Launch", "#AI"}, res.State.Drafts[0].Hashtags)
	require.Nil(t, res.State.ReviewResult)

	res, err = g.Resume(context.Background(), res.State, res.Next,
		Decision{Action: ActionApprove, Reviewer: "u1"}, obs)
	require.NoError(t, err)
	require.False(t, res.Suspended)
	require.Equal(t, []string{NodePlanner, NodeCreator, NodeReviewer}, obs.started)
	require.NotNil(t, res.State.ReviewResult)
	require.True(t, res.State.ReviewResult.Approved)
	require.Equal(t, "u1", res.State.ReviewResult.Reviewer)
	require.False(t, res.State.ReviewResult.Auto)
}

func TestScoreGateAutoApproves(t *testing.T) {
	client := scripted(t, "```json\n{\"score\":0.92,\"feedback\":\"on brand\",\"approved\":true}\n```")
	gate, err := NewScoreGate(client, "", nil)
	require.NoError(t, err)
	obs := &recorder{}

	res, err := NewContentAgent(client, gate).Graph().Run(context.Background(), input(t, ""), obs)
	require.NoError(t, err)
	require.False(t, res.Suspended)
	require.Equal(t, []string{NodePlanner, NodeCreator, NodeReviewer}, obs.started)

	rr := res.State.ReviewResult
	require.NotNil(t, rr)
	require.True(t, rr.Approved)
	require.True(t, rr.Auto)
	require.Equal(t, AutoReviewer, rr.Reviewer)
	require.NotNil(t, rr.Score)
	require.InDelta(t, 0.92, *rr.Score, 1e-9)
	require.Equal(t, "on brand", rr.Feedback)
}

func TestScoreGateLowScoreWaitsForReviewer(t *testing.T) {
	client := scripted(t, `{"score":0.5,"feedback":"too casual","approved":false}`)
	gate, err := NewScoreGate(client, DefaultApproveRule, nil)
	require.NoError(t, err)

	res, err := NewContentAgent(client, gate).Graph().Run(context.Background(), input(t, ""), nil)
	require.NoError(t, err)
	require.True(t, res.Suspended)
	require.Equal(t, NodeReviewer, res.Next)
	require.NotNil(t, res.State.Assessment)
	require.InDelta(t, 0.5, res.State.Assessment.Score, 1e-9)
}

func TestScoreGateUnreadableVerdictWaitsForReviewer(t *testing.T) {
	client := scripted(t, "I think it is fine")
	gate, err := NewScoreGate(client, "", nil)
	require.NoError(t, err)

	res, err := NewContentAgent(client, gate).Graph().Run(context.Background(), input(t, ""), nil)
	require.NoError(t, err)
	require.True(t, res.Suspended)
	require.Nil(t, res.State.Assessment)
}

func TestRequireApprovalSkipsScoring(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req llm.Request) (*llm.Response, error) {
			require.NotEqual(t, NodeReviewer, req.Operation)
			return &llm.Response{Content: "content"}, nil
		}).Times(3)
	gate, err := NewScoreGate(client, "", nil)
	require.NoError(t, err)

	res, err := NewContentAgent(client, gate).Graph().Run(context.Background(), input(t, `,"require_approval":true`), nil)
	require.NoError(t, err)
	require.True(t, res.Suspended)
}

type disabledFlags struct {
	featureflags.FeatureFlag
	asked string
}

func (d *disabledFlags) IsEnabled(_ context.Context, identifier, feature string, _ bool) bool {
	d.asked = identifier + "/" + feature
	return false
}

func TestScoreGateHonoursOrganizationFlag(t *testing.T) {
	client := scripted(t, `{"score":0.99,"feedback":"","approved":true}`)
	flags := &disabledFlags{}
	gate, err := NewScoreGate(client, "", flags)
	require.NoError(t, err)

	ctx := tenancy.WithScope(context.Background(), tenancy.Scope{TenantID: "org-1", CallerID: "u1", Role: "editor"})
	res, err := NewContentAgent(client, gate).Graph().Run(ctx, input(t, ""), nil)
	require.NoError(t, err)
	require.True(t, res.Suspended)
	require.Equal(t, "org-1/"+featureflags.AutoReview, flags.asked)
}

func TestNewScoreGateRejectsBadRule(t *testing.T) {
	_, err := NewScoreGate(nil, "score >=", nil)
	require.Error(t, err)
}

func TestNodeFailureIsReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewMockClient(ctrl)
	boom := errors.New("upstream down")
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(nil, boom)
	obs := &recorder{}

	_, err := NewContentAgent(client, NewManualGate()).Graph().Run(context.Background(), input(t, ""), obs)
	var nerr *NodeError
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, NodePlanner, nerr.Node)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"planner:error"}, obs.finished)
}

type greedy struct{}

func (greedy) Name() string   { return "greedy" }
func (greedy) Owns() []string { return []string{KeyPlan} }
func (greedy) Run(context.Context, State) (Update, error) {
	topic := "rewritten"
	return Update{Topic: &topic}, nil
}

func TestGraphRejectsWriteOutsideOwnership(t *testing.T) {
	g := NewGraph("test", NewManualGate(), "", greedy{})
	_, err := g.Run(context.Background(), State{Topic: "t"}, nil)
	require.ErrorIs(t, err, ErrUnownedKey)
}

func TestResumeValidation(t *testing.T) {
	g := NewContentAgent(scripted(t, ""), NewManualGate()).Graph()
	st := input(t, "")

	_, err := g.Resume(context.Background(), st, NodeCreator, Decision{Action: ActionApprove}, nil)
	require.ErrorIs(t, err, ErrNotSuspended)

	_, err = g.Resume(context.Background(), st, NodeReviewer, Decision{Action: ActionReject}, nil)
	require.Error(t, err)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewContentAgent(scripted(t, ""), NewManualGate()).Graph()

	_, err := g.Run(ctx, input(t, ""), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeValidatesInput(t *testing.T) {
	agent := NewContentAgent(nil, NewManualGate())

	_, err := agent.Decode(json.RawMessage(`{"platforms":["twitter"]}`))
	require.True(t, errutil.IsCode(err, errutil.StatusValidationFailed))
	require.Equal(t, "topic", errutil.From(err).Details[0].Field)

	_, err = agent.Decode(json.RawMessage(`{"topic":"x","platforms":["myspace"]}`))
	require.True(t, errutil.IsCode(err, errutil.StatusValidationFailed))

	_, err = agent.Decode(json.RawMessage(`[1,2]`))
	require.True(t, errutil.IsCode(err, errutil.StatusBadRequest))

	st, err := agent.Decode(json.RawMessage(`{"topic":" x ","platforms":["twitter","twitter"]}`))
	require.NoError(t, err)
	require.Equal(t, "x", st.Topic)
	require.Equal(t, []string{"twitter"}, st.Platforms)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(NewContentAgent(nil, NewManualGate()))
	a, err := r.Lookup(AgentContentPipeline)
	require.NoError(t, err)
	require.Equal(t, AgentContentPipeline, a.Type())

	_, err = r.Lookup("nope")
	require.True(t, errutil.IsCode(err, errutil.StatusBadRequest))
}

func TestTruncateCountsRunes(t *testing.T) {
	require.Equal(t, "héllo", truncate("héllo wörld", 5))
	require.Equal(t, "short", truncate("short", 280))
}
