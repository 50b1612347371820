package offline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Prober answers whether the loan server can be reached right now
type Prober interface {
	Reachable(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Reachable(ctx context.Context) bool {
	return f(ctx)
}

// HealthChecker is the part of the API client the prober needs
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HTTPProber issues one health request per call. Nothing is cached, so a
// flaky connection is re-evaluated on every operation.
type HTTPProber struct {
	checker HealthChecker
	timeout time.Duration
}

// NewHTTPProber creates a prober; timeout bounds the health request and
// zero leaves it to the client's own timeout.
func NewHTTPProber(checker HealthChecker, timeout time.Duration) *HTTPProber {
	return &HTTPProber{checker: checker, timeout: timeout}
}

// Reachable never fails: every error, timeout or non-2xx is just false
func (p *HTTPProber) Reachable(ctx context.Context) bool {
	if p.checker == nil {
		return false
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.checker.Health(ctx) == nil
}

// HeartbeatProber probes in the background and serves the last known
// answer, trading freshness for one less round trip per operation.
type HeartbeatProber struct {
	probe    Prober
	interval time.Duration
	logger   *zap.Logger

	cron      *cron.Cron
	reachable atomic.Bool
	startOnce sync.Once
}

func NewHeartbeatProber(probe Prober, interval time.Duration, logger *zap.Logger) *HeartbeatProber {
	return &HeartbeatProber{
		probe:    probe,
		interval: interval,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start probes once synchronously, then every interval until Stop
func (h *HeartbeatProber) Start(ctx context.Context) error {
	if h.interval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %s", h.interval)
	}

	var err error
	h.startOnce.Do(func() {
		h.refresh(ctx)
		_, err = h.cron.AddFunc(fmt.Sprintf("@every %s", h.interval), func() {
			h.refresh(context.Background())
		})
		if err == nil {
			h.cron.Start()
		}
	})
	return err
}

// Stop halts the heartbeat and waits for a running probe to finish
func (h *HeartbeatProber) Stop() {
	<-h.cron.Stop().Done()
}

func (h *HeartbeatProber) Reachable(context.Context) bool {
	return h.reachable.Load()
}

func (h *HeartbeatProber) refresh(ctx context.Context) {
	now := h.probe.Reachable(ctx)
	if before := h.reachable.Swap(now); before != now {
		h.logger.Info("server reachability changed", zap.Bool("reachable", now))
	}
}

var (
	_ Prober = (*HTTPProber)(nil)
	_ Prober = (*HeartbeatProber)(nil)
	_ Prober = ProberFunc(nil)
)
