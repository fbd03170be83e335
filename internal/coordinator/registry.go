package coordinator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/gigmarket/internal/domain"
)

const shardCount = 32

// ActionBroadcast is the only action a BroadcastRequest may carry.
const ActionBroadcast = "broadcast"

// Handle is the narrow surface of a coordinator.
type Handle interface {
	Key() domain.EntityKey
	AcceptConnection(token string, ws *websocket.Conn) (*Connection, error)
	HandleBroadcastRequest(secret string, event domain.Event) error
	ConnectionCount() int
}

// BroadcastRequest is what a Backing delivers to a coordinator.
type BroadcastRequest struct {
	Action string
	Secret string
	Event  domain.Event
}

// Backing addresses coordinators. Implementations decide where they live:
// in this process, behind a Redis relay, or on a remote coordinator host.
type Backing interface {
	Resolve(key domain.EntityKey) Handle
	Send(ctx context.Context, key domain.EntityKey, req BroadcastRequest) error
}

// Stats is a snapshot of the coordinators hosted by a Registry.
type Stats struct {
	Coordinators int `json:"coordinators"`
	Connections  int `json:"connections"`
}

type registryShard struct {
	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

// Registry is the in-process Backing: a sharded map from entity key to
// coordinator, with one mutex per shard.
type Registry struct {
	opts   Options
	shards [shardCount]registryShard
}

var _ Backing = (*Registry)(nil)

func NewRegistry(opts Options) *Registry {
	r := &Registry{opts: opts.withDefaults()}
	for i := range r.shards {
		r.shards[i].coordinators = make(map[string]*Coordinator)
	}
	return r
}

// Resolve returns the coordinator for key, creating it when absent or stopped.
func (r *Registry) Resolve(key domain.EntityKey) Handle {
	return r.resolve(key)
}

func (r *Registry) resolve(key domain.EntityKey) *Coordinator {
	id := key.String()
	s := r.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.coordinators[id]; ok && !c.Stopped() {
		return c
	}
	c := newCoordinator(key, r.opts)
	s.coordinators[id] = c
	return c
}

// Lookup returns the live coordinator for key without creating one.
func (r *Registry) Lookup(key domain.EntityKey) (Handle, bool) {
	id := key.String()
	s := r.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coordinators[id]
	if !ok || c.Stopped() {
		return nil, false
	}
	return c, true
}

// Send resolves key and hands the request to its coordinator. A coordinator
// that retires between resolve and delivery is replaced once.
func (r *Registry) Send(ctx context.Context, key domain.EntityKey, req BroadcastRequest) error {
	if req.Action != ActionBroadcast {
		return fmt.Errorf("%w: %q", ErrUnsupportedAction, req.Action)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := r.resolve(key)
		err := c.HandleBroadcastRequest(req.Secret, req.Event)
		if errors.Is(err, ErrCoordinatorStopped) && attempt == 0 {
			r.forget(c)
			continue
		}
		return err
	}
}

// Accept resolves key and accepts ws on its coordinator, retrying once when
// the coordinator retired in between.
func (r *Registry) Accept(key domain.EntityKey, token string, ws *websocket.Conn) (*Connection, error) {
	for attempt := 0; ; attempt++ {
		c := r.resolve(key)
		conn, err := c.AcceptConnection(token, ws)
		if errors.Is(err, ErrCoordinatorStopped) && attempt == 0 {
			r.forget(c)
			continue
		}
		if errors.Is(err, ErrCoordinatorStopped) {
			c.reject(ws, err)
		}
		return conn, err
	}
}

func (r *Registry) Stats() Stats {
	var st Stats
	for _, c := range r.snapshot() {
		st.Coordinators++
		if n := c.ConnectionCount(); n > 0 {
			st.Connections += n
		}
	}
	return st
}

// Sweep retires coordinators that have had no connections for IdleTTL.
// It returns the number retired.
func (r *Registry) Sweep() int {
	retired := 0
	for _, c := range r.snapshot() {
		if c.retire(r.opts.IdleTTL) {
			r.forget(c)
			retired++
		}
	}
	if retired > 0 {
		slog.Debug("Idle coordinators retired", "count", retired)
	}
	return retired
}

// RunSweeper calls Sweep every half IdleTTL until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := r.opts.Clock.NewTicker(r.opts.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// Stop stops every coordinator in parallel and empties the registry.
func (r *Registry) Stop() {
	var all []*Coordinator
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id, c := range s.coordinators {
			all = append(all, c)
			delete(s.coordinators, id)
		}
		s.mu.Unlock()
	}

	var wg sync.WaitGroup
	for _, c := range all {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Stop()
		}()
	}
	wg.Wait()
	slog.Info("Coordinator registry stopped", "coordinators", len(all))
}

// snapshot copies the live coordinators so callers can talk to them
// without holding shard locks.
func (r *Registry) snapshot() []*Coordinator {
	var out []*Coordinator
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, c := range s.coordinators {
			out = append(out, c)
		}
		s.mu.Unlock()
	}
	return out
}

// forget drops c from the map unless a newer coordinator replaced it.
func (r *Registry) forget(c *Coordinator) {
	id := c.key.String()
	s := r.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coordinators[id] == c {
		delete(s.coordinators, id)
	}
}

func (r *Registry) shard(id string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.shards[h.Sum32()%shardCount]
}
