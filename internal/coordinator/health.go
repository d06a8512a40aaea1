package coordinator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jittakal/edgeshuffle/internal/server"
	"github.com/jittakal/edgeshuffle/pkg/edge"
)

// Ensure implementation satisfies interface at compile time.
var _ server.HealthChecker = (*Coordinator)(nil)

// Liveness reports false once the edge lists became unusable.
func (c *Coordinator) Liveness() bool {
	return c.Err() == nil
}

// Readiness reports whether the partitions are built.
func (c *Coordinator) Readiness(_ context.Context) bool {
	return c.IsHealthy() && c.Phase() == edge.PhaseShuffled
}

// IsHealthy reports whether no fatal error occurred.
func (c *Coordinator) IsHealthy() bool {
	return c.Err() == nil
}

// GetStatus returns per-device status for the readiness endpoint.
func (c *Coordinator) GetStatus() map[string]string {
	status := map[string]string{
		"phase":   string(c.Phase()),
		"devices": strconv.Itoa(len(c.lists)),
	}
	if err := c.Err(); err != nil {
		status["error"] = err.Error()
	}
	for _, s := range c.Stats() {
		status[fmt.Sprintf("rank_%d", s.Rank)] = fmt.Sprintf("chunks=%d edges=%d", s.Chunks, s.Edges)
	}
	return status
}
