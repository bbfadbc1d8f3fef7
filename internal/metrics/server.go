package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradecore/internal/model"
)

// Identity names the running service in liveness responses.
type Identity struct {
	Service string `json:"service"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// Probes supplies the live state the health endpoints report on.
// Safety must never block; the endpoints are scraped on a tight loop.
type Probes struct {
	Safety         func() model.SafetyState
	LastMarketData func() *time.Time
	StaleThreshold func() time.Duration
}

// Server exposes /metrics, /livez, /readyz, /healthz and /heartbeat.
type Server struct {
	addr     string
	identity Identity
	probes   Probes
	metrics  *Metrics
	srv      *http.Server
	now      func() time.Time
}

// NewServer wires the health endpoints onto addr.
func NewServer(addr string, identity Identity, probes Probes, m *Metrics) *Server {
	s := &Server{
		addr:     addr,
		identity: identity,
		probes:   probes,
		metrics:  m,
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/livez", s.handleLivez)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/heartbeat", s.handleHeartbeat)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler returns the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// handleLivez answers 200 whenever the process is up. Liveness is
// about the process, not its dependencies.
func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "alive",
		"identity": s.identity,
	})
}

// handleReadyz is fail-closed: 200 only when the safety evaluation
// says it is safe to run, 503 otherwise. The body always carries the
// full safety state and the market data heartbeat so operators can see
// which gate failed.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	state := s.probes.Safety()
	code := http.StatusServiceUnavailable
	if state.SafeToRun() {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"safety_state":         state,
		"marketdata_heartbeat": s.heartbeat(),
	})
}

// handleHealthz reports the same readiness decision with the identity
// attached, for humans rather than orchestrators.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.probes.Safety()
	status := "healthy"
	code := http.StatusOK
	if !state.SafeToRun() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":       status,
		"identity":     s.identity,
		"safety_state": state,
	})
}

// handleHeartbeat always answers 200; staleness is reported in the
// body, not the status code, so a stale feed doesn't hide the report.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.heartbeat())
}

type heartbeatBody struct {
	LastMarketDataTS   *time.Time `json:"last_marketdata_ts"`
	Status             string     `json:"status"`
	AgeSeconds         float64    `json:"age_seconds"`
	StaleThresholdSecs float64    `json:"stale_threshold_seconds"`
	KillSwitch         bool       `json:"kill_switch"`
}

func (s *Server) heartbeat() heartbeatBody {
	threshold := s.probes.StaleThreshold()
	hb := heartbeatBody{
		Status:             "stale",
		StaleThresholdSecs: threshold.Seconds(),
		KillSwitch:         s.probes.Safety().KillSwitch,
	}
	if last := s.probes.LastMarketData(); last != nil {
		age := s.now().Sub(*last)
		hb.LastMarketDataTS = last
		hb.AgeSeconds = age.Seconds()
		if age <= threshold {
			hb.Status = "fresh"
		}
	}
	if s.metrics != nil && hb.LastMarketDataTS != nil {
		s.metrics.HeartbeatAge.Set(hb.AgeSeconds)
	}
	return hb
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
