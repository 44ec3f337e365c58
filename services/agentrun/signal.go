package agentrun

import (
	"context"
	"encoding/json"
	"sync"

	"openpaws/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type SignalKind string

const (
	SignalApprove SignalKind = "approve"
	SignalReject  SignalKind = "reject"
	SignalRevise  SignalKind = "revise"
	SignalCancel  SignalKind = "cancel"
)

// Signal wakes the task parked on a run. The run row is always updated
// before a signal is published; the signal only carries the reviewer.
type Signal struct {
	Kind     SignalKind `json:"kind"`
	Reviewer string     `json:"reviewer,omitempty"`
	Feedback string     `json:"feedback,omitempty"`
}

type Subscription interface {
	C() <-chan Signal
	Close() error
}

// SignalBus delivers resume and stop signals to parked runs by run id.
type SignalBus interface {
	Subscribe(ctx context.Context, runID string) (Subscription, error)
	// Publish reports whether at least one subscriber received the signal.
	Publish(ctx context.Context, runID string, sig Signal) (bool, error)
}

type memoryBus struct {
	mu   sync.Mutex
	subs map[string]map[*memorySub]struct{}
}

func NewMemoryBus() SignalBus {
	return &memoryBus{subs: make(map[string]map[*memorySub]struct{})}
}

type memorySub struct {
	bus   *memoryBus
	runID string
	ch    chan Signal
	once  sync.Once
}

func (s *memorySub) C() <-chan Signal { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		set := s.bus.subs[s.runID]
		delete(set, s)
		if len(set) == 0 {
			delete(s.bus.subs, s.runID)
		}
	})
	return nil
}

func (b *memoryBus) Subscribe(_ context.Context, runID string) (Subscription, error) {
	sub := &memorySub{bus: b, runID: runID, ch: make(chan Signal, 1)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[*memorySub]struct{})
	}
	b.subs[runID][sub] = struct{}{}
	return sub, nil
}

func (b *memoryBus) Publish(_ context.Context, runID string, sig Signal) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := false
	for sub := range b.subs[runID] {
		select {
		case sub.ch <- sig:
			delivered = true
		default:
		}
	}
	return delivered, nil
}

type redisBus struct {
	client *redis.Client
}

// NewRedisBus shares signals across instances through redis pub/sub.
func NewRedisBus(client *redis.Client) SignalBus {
	return &redisBus{client: client}
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan Signal
	done chan struct{}
	once sync.Once
}

func (s *redisSub) C() <-chan Signal { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (b *redisBus) Subscribe(ctx context.Context, runID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, rediskey.BuildAgentRunSignalKey(runID))
	// wait for the subscription to be confirmed so a publish right after
	// Subscribe returns is not lost
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSub{ps: ps, ch: make(chan Signal, 1), done: make(chan struct{})}
	go sub.forward(runID, ps.Channel())
	return sub, nil
}

// forward decodes messages into C until msgs closes or the subscription
// is closed. A full C drops the message like the in-memory bus does.
func (s *redisSub) forward(runID string, msgs <-chan *redis.Message) {
	for msg := range msgs {
		var sig Signal
		if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
			zap.L().Warn("dropping malformed run signal", zap.String("run_id", runID), zap.Error(err))
			continue
		}
		select {
		case s.ch <- sig:
		case <-s.done:
			return
		default:
		}
	}
}

func (b *redisBus) Publish(ctx context.Context, runID string, sig Signal) (bool, error) {
	payload, err := json.Marshal(sig)
	if err != nil {
		return false, err
	}
	n, err := b.client.Publish(ctx, rediskey.BuildAgentRunSignalKey(runID), payload).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
