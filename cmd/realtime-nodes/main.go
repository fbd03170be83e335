// Command realtime-nodes lists the nodes sharing a Redis realtime relay.
// Listing prunes nodes whose liveness key has expired.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	redisadapter "github.com/pscheid92/gigmarket/internal/adapter/redis"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/platform/logging"
)

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		asJSON   = flag.Bool("json", false, "Print nodes as JSON")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	slog.SetDefault(logging.New(os.Stderr, level, "text"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := redisadapter.NewClient(ctx, *redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Debug("Connected to Redis", "url", sanitizeURL(*redisURL))

	// Read-only use: this process never heartbeats, so it needs no node ID or stats.
	nodes := redisadapter.NewNodeRegistry(rdb, "", func() coordinator.Stats { return coordinator.Stats{} }, clockwork.NewRealClock())
	live, err := nodes.LiveNodes(ctx)
	if err != nil {
		log.Fatalf("Failed to list nodes: %v", err)
	}

	if *asJSON {
		err = printJSON(os.Stdout, live)
	} else {
		err = printTable(os.Stdout, live, time.Now())
	}
	if err != nil {
		log.Fatalf("Failed to print nodes: %v", err)
	}
}

func printJSON(w io.Writer, nodes []redisadapter.NodeInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(nodes)
}

func printTable(w io.Writer, nodes []redisadapter.NodeInfo, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tVERSION\tCOORDINATORS\tCONNECTIONS\tLAST HEARTBEAT")
	var coordinators, connections int
	for _, n := range nodes {
		coordinators += n.Coordinators
		connections += n.Connections
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s ago\n",
			n.NodeID, n.Version, n.Coordinators, n.Connections, now.Sub(n.HeartbeatAt).Round(time.Second))
	}
	fmt.Fprintf(tw, "TOTAL (%d nodes)\t\t%d\t%d\t\n", len(nodes), coordinators, connections)
	return tw.Flush()
}

// sanitizeURL hides the password in a Redis URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
