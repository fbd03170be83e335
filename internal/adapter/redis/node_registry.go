package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	nodesKey          = "realtime:nodes"
	nodeAlivePrefix   = "realtime:node:"
	heartbeatInterval = 10 * time.Second
	// A node missing three heartbeats is considered gone.
	nodeTTL = 3 * heartbeatInterval
)

// NodeInfo is what each node reports about itself.
type NodeInfo struct {
	NodeID       string    `json:"nodeId"`
	Version      string    `json:"version"`
	Coordinators int       `json:"coordinators"`
	Connections  int       `json:"connections"`
	HeartbeatAt  time.Time `json:"heartbeatAt"`
}

// NodeRegistry records live nodes in a Redis hash. Liveness is a separate
// key per node with a TTL, refreshed on every heartbeat.
type NodeRegistry struct {
	rdb    *goredis.Client
	nodeID string
	stats  func() coordinator.Stats
	clock  clockwork.Clock
}

func NewNodeRegistry(rdb *goredis.Client, nodeID string, stats func() coordinator.Stats, clock clockwork.Clock) *NodeRegistry {
	return &NodeRegistry{rdb: rdb, nodeID: nodeID, stats: stats, clock: clock}
}

func (n *NodeRegistry) NodeID() string {
	return n.nodeID
}

// Heartbeat publishes this node's current stats and refreshes its liveness key.
func (n *NodeRegistry) Heartbeat(ctx context.Context) error {
	st := n.stats()
	data, err := json.Marshal(NodeInfo{
		NodeID:       n.nodeID,
		Version:      version.Version,
		Coordinators: st.Coordinators,
		Connections:  st.Connections,
		HeartbeatAt:  n.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode node info: %w", err)
	}

	_, err = n.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, nodesKey, n.nodeID, data)
		pipe.Set(ctx, nodeAlivePrefix+n.nodeID, "1", nodeTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// Deregister removes this node immediately.
func (n *NodeRegistry) Deregister(ctx context.Context) error {
	_, err := n.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, nodesKey, n.nodeID)
		pipe.Del(ctx, nodeAlivePrefix+n.nodeID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to deregister node: %w", err)
	}
	return nil
}

// LiveNodes returns nodes whose liveness key still exists, sorted by id.
// Entries of expired nodes are pruned on the way.
func (n *NodeRegistry) LiveNodes(ctx context.Context) ([]NodeInfo, error) {
	entries, err := n.rdb.HGetAll(ctx, nodesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	if len(entries) == 0 {
		return []NodeInfo{}, nil
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pipe := n.rdb.Pipeline()
	alive := make([]*goredis.IntCmd, len(ids))
	for i, id := range ids {
		alive[i] = pipe.Exists(ctx, nodeAlivePrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check node liveness: %w", err)
	}

	nodes := make([]NodeInfo, 0, len(ids))
	var stale []string
	for i, id := range ids {
		if alive[i].Val() == 0 {
			stale = append(stale, id)
			continue
		}
		var info NodeInfo
		if err := json.Unmarshal([]byte(entries[id]), &info); err != nil {
			slog.Warn("Skipping unreadable node entry", "node_id", id, "error", err)
			continue
		}
		nodes = append(nodes, info)
	}

	if len(stale) > 0 {
		if err := n.rdb.HDel(ctx, nodesKey, stale...).Err(); err != nil {
			slog.Warn("Failed to prune stale nodes", "nodes", stale, "error", err)
		}
	}
	return nodes, nil
}

// Run heartbeats until ctx is done, then deregisters.
func (n *NodeRegistry) Run(ctx context.Context) {
	if err := n.Heartbeat(ctx); err != nil {
		slog.Warn("Node heartbeat failed", "node_id", n.nodeID, "error", err)
	}

	ticker := n.clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := n.Deregister(cleanupCtx); err != nil {
				slog.Warn("Node deregistration failed", "node_id", n.nodeID, "error", err)
			}
			return
		case <-ticker.Chan():
			if err := n.Heartbeat(ctx); err != nil {
				slog.Warn("Node heartbeat failed", "node_id", n.nodeID, "error", err)
			}
		}
	}
}
