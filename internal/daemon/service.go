// Package daemon provides the long-running background budget refresher.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/bunqday/internal/logging"
	"github.com/theirongolddev/bunqday/internal/pipeline"

	"github.com/shopspring/decimal"
)

// Refresher produces a fresh budget. *pipeline.Refresher satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (*pipeline.Result, error)
}

// Config controls the daemon runtime behavior.
type Config struct {
	Interval     time.Duration
	Addr         string
	EventsBuffer int
}

// Snapshot is a compact budget state for status/event payloads.
type Snapshot struct {
	At               time.Time       `json:"at"`
	AccountID        int64           `json:"account_id"`
	AccountName      string          `json:"account_name,omitempty"`
	TodayLeft        decimal.Decimal `json:"today_left"`
	TodayLeftPercent float64         `json:"today_left_percent"`
	Balance          decimal.Decimal `json:"balance"`
	DaysLeft         int             `json:"days_left"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	TodayLeft decimal.Decimal `json:"today_left"`
	Balance   decimal.Decimal `json:"balance"`
	DaysLeft  int             `json:"days_left"`
}

func (d Delta) isZero() bool {
	return d.TodayLeft.IsZero() &&
		d.Balance.IsZero() &&
		d.DaysLeft == 0
}

// Event is emitted whenever the budget snapshot changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	Summary         Snapshot  `json:"summary"`
	HasSnapshot     bool      `json:"has_snapshot"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API. It is the only writer of
// the balance cache while running: polls never overlap.
type Service struct {
	cfg       Config
	refresher Refresher
	events    *hub

	pollMu sync.Mutex

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
}

// New returns a new daemon service with the provided config.
func New(cfg Config, r Refresher) *Service {
	if cfg.Interval < 30*time.Second {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8765"
	}

	return &Service{
		cfg:       cfg,
		refresher: r,
		events:    newHub(cfg.EventsBuffer),
		startedAt: time.Now(),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/balance", s.handleBalance)
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	return mux
}

// Run serves the HTTP API and polls every interval until ctx is canceled.
// The first poll happens before the first tick so /v1/balance is useful
// right away.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pollOnce(ctx)
		case err := <-serveErr:
			return fmt.Errorf("daemon http server: %w", err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	}
}

// pollOnce forces one refresh and publishes an event when the budget moved.
func (s *Service) pollOnce(ctx context.Context) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	res, err := s.refresher.Refresh(ctx, true)
	now := time.Now()
	if err != nil {
		s.recordFailure(err, now)
		logging.Errorf("daemon poll: %v", err)
		return
	}

	snap := snapshotFromResult(res, now)
	if ev, changed := s.recordSnapshot(snap, now); changed {
		s.events.publish(ev)
	}
	logging.Debugf("daemon poll: today left %s, %d days to reset", snap.TodayLeft.StringFixed(2), snap.DaysLeft)
}

func (s *Service) recordFailure(err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err.Error()
	s.lastPollAt = at
	s.pollCount++
}

// recordSnapshot stores snap as current and reports the event it warrants:
// a full snapshot the first time, a delta when the budget or account changed.
func (s *Service) recordSnapshot(snap Snapshot, at time.Time) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev := s.snapshot, s.hasSnapshot
	s.snapshot = snap
	s.hasSnapshot = true
	s.lastPollAt = at
	s.pollCount++
	s.lastError = ""

	if !hadPrev {
		return Event{Type: "snapshot", Timestamp: at, Snapshot: snap}, true
	}
	delta := diffSnapshots(prev, snap)
	if delta.isZero() && prev.AccountID == snap.AccountID {
		return Event{}, false
	}
	return Event{Type: "budget_delta", Timestamp: at, Snapshot: snap, Delta: delta}, true
}

func snapshotFromResult(res *pipeline.Result, at time.Time) Snapshot {
	b := res.Balance
	return Snapshot{
		At:               at,
		AccountID:        res.Account.AccountID,
		AccountName:      res.Account.AccountName,
		TodayLeft:        b.TodayLeft,
		TodayLeftPercent: b.TodayLeftPercent,
		Balance:          b.Balance,
		DaysLeft:         b.DaysLeft,
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		TodayLeft: curr.TodayLeft.Sub(prev.TodayLeft),
		Balance:   curr.Balance.Sub(prev.Balance),
		DaysLeft:  curr.DaysLeft - prev.DaysLeft,
	}
}

func (s *Service) snapshotStatus() Status {
	events, subs := s.events.counts()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		Summary:         s.snapshot,
		HasSnapshot:     s.hasSnapshot,
		LastError:       s.lastError,
		EventCount:      events,
		SubscriberCount: subs,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snapshotStatus())
}

func (s *Service) handleBalance(w http.ResponseWriter, _ *http.Request) {
	st := s.snapshotStatus()
	if !st.HasSnapshot {
		http.Error(w, "no balance yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, st.Summary)
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.pollOnce(r.Context())
	writeJSON(w, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.events.recent())
}

// handleStream sends the current snapshot, then every published event, as
// server-sent events until the client goes away.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, leave := s.events.subscribe(16)
	defer leave()

	writeSSE(w, Event{Type: "snapshot", Timestamp: time.Now(), Snapshot: s.snapshotStatus().Summary})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if ev.ID > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
