// Package health exposes liveness and readiness endpoints for the ops
// listener, with process-level resource stats in the liveness payload.
package health

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Check reports whether one dependency is ready. Name identifies it in the
// readiness payload.
type Check struct {
	Name  string
	Ready func() bool
}

// Handler serves /healthz and /readyz.
type Handler struct {
	start  time.Time
	proc   *process.Process
	checks []Check
}

// New creates a handler. Process stat collection degrades gracefully when
// the current pid cannot be inspected.
func New(checks ...Check) *Handler {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Handler{start: time.Now(), proc: proc, checks: checks}
}

type processStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss_bytes"`
	Threads    int32   `json:"threads"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Process *processStats `json:"process,omitempty"`
}

type readyResponse struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks"`
}

// Liveness always reports healthy while the process can serve it.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Uptime: time.Since(h.start).Round(time.Second).String(),
	}
	if h.proc != nil {
		stats := &processStats{}
		if cpu, err := h.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if mem, err := h.proc.MemoryInfo(); err == nil && mem != nil {
			stats.MemoryRSS = mem.RSS
		}
		if threads, err := h.proc.NumThreads(); err == nil {
			stats.Threads = threads
		}
		resp.Process = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readiness runs every registered check and fails with 503 when any
// dependency is not ready.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ready", Checks: make(map[string]bool, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		ok := c.Ready()
		resp.Checks[c.Name] = ok
		if !ok {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
