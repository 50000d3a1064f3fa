// Package handlers contains HTTP middleware and health checks shared by the API server.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Check probes one dependency. A nil error means usable.
type Check func(ctx context.Context) error

// HealthChecker is what /health and /ready consume.
type HealthChecker interface {
	Check(ctx context.Context) HealthReport
}

// Report statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded" // an optional check failed
	StatusDown     = "down"     // a critical check failed
)

// HealthReport aggregates one round of checks.
type HealthReport struct {
	Status    string        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Healthy is true only when every check passed.
func (r HealthReport) Healthy() bool { return r.Status == StatusOK }

// Ready ignores optional checks: a cold snapshot cache still serves traffic.
func (r HealthReport) Ready() bool { return r.Status != StatusDown }

// Failed lists the names of failing checks, critical ones included.
func (r HealthReport) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if c.Error != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// Summary is a one-line description for probe responses.
func (r HealthReport) Summary() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return "all checks passed"
	}
	return "failing: " + strings.Join(failed, ", ")
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	Took     string `json:"took"`
}

type namedCheck struct {
	name     string
	check    Check
	critical bool
}

// HealthRegistry runs registered checks concurrently, each under its own timeout.
type HealthRegistry struct {
	version string
	timeout time.Duration
	started time.Time

	mu     sync.RWMutex
	checks []namedCheck
}

// NewHealthRegistry creates an empty registry. timeout <= 0 means 5s per check.
func NewHealthRegistry(version string, timeout time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthRegistry{version: version, timeout: timeout, started: time.Now()}
}

// AddCheck registers a dependency the service cannot work without.
func (h *HealthRegistry) AddCheck(name string, c Check) { h.add(name, c, true) }

// AddOptionalCheck registers a dependency whose loss only degrades the service.
func (h *HealthRegistry) AddOptionalCheck(name string, c Check) { h.add(name, c, false) }

// add replaces an existing check with the same name.
func (h *HealthRegistry) add(name string, c Check, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.checks {
		if h.checks[i].name == name {
			h.checks[i] = namedCheck{name, c, critical}
			return
		}
	}
	h.checks = append(h.checks, namedCheck{name, c, critical})
	sort.Slice(h.checks, func(i, j int) bool { return h.checks[i].name < h.checks[j].name })
}

func (h *HealthRegistry) Check(ctx context.Context) HealthReport {
	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, nc := range checks {
		wg.Add(1)
		go func(i int, nc namedCheck) {
			defer wg.Done()
			results[i] = h.run(ctx, nc)
		}(i, nc)
	}
	wg.Wait()

	status := StatusOK
	for _, r := range results {
		switch {
		case r.Error == "":
		case r.Critical:
			status = StatusDown
		case status == StatusOK:
			status = StatusDegraded
		}
	}

	return HealthReport{
		Status:    status,
		Checks:    results,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	}
}

func (h *HealthRegistry) run(ctx context.Context, nc namedCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	res := CheckResult{Name: nc.name, Critical: nc.critical}
	if err := nc.check(ctx); err != nil {
		res.Error = err.Error()
	}
	res.Took = time.Since(start).Round(time.Millisecond).String()
	return res
}

// Pinger is implemented by the postgres connection and the redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck turns a Pinger into a Check.
func NewPingCheck(p Pinger) Check { return p.Ping }
