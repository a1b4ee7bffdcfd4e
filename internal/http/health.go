package httpapp

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const probeTimeout = 5 * time.Second

// Probe checks one dependency.
type Probe func(ctx context.Context) error

type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type DetailedHealth struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// HealthChecker runs named probes concurrently.
type HealthChecker struct {
	probes map[string]Probe
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{probes: make(map[string]Probe)}
}

func (c *HealthChecker) Add(name string, p Probe) *HealthChecker {
	c.probes[name] = p
	return c
}

// Check runs every probe. A failing probe marks the result degraded but
// never stops the others.
func (c *HealthChecker) Check(ctx context.Context) DetailedHealth {
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu     sync.Mutex
		result = DetailedHealth{Status: "healthy", Components: make(map[string]ComponentStatus, len(names))}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		probe := c.probes[name]
		g.Go(func() error {
			pctx, pcancel := context.WithTimeout(gctx, probeTimeout)
			defer pcancel()
			status := ComponentStatus{Status: "healthy", Message: "ok"}
			if err := probe(pctx); err != nil {
				status = ComponentStatus{Status: "unhealthy", Message: err.Error()}
			}
			mu.Lock()
			result.Components[name] = status
			if status.Status != "healthy" {
				result.Status = "degraded"
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) DetailedHealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health == nil {
		writeJSON(w, http.StatusOK, DetailedHealth{Status: "healthy", Components: map[string]ComponentStatus{}})
		return
	}
	writeJSON(w, http.StatusOK, h.Health.Check(r.Context()))
}
