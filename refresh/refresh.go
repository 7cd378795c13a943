// Package refresh keeps a live CTY table: it loads the configured file at
// startup, re-downloads it on a daily UTC schedule, and swaps in a freshly
// parsed table only when the content changed. Readers never see a partial
// table; a failed reload leaves the previous one in place.
package refresh

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"ctydat/config"
	"ctydat/cty"
	"ctydat/download"
)

const (
	retryBase = 1 * time.Minute
	retryMax  = 30 * time.Minute
	userAgent = "ctylookup"
)

// Holder owns the current table behind an atomic pointer.
type Holder struct {
	cfg       config.CTYConfig
	format    cty.Format
	logger    *zap.Logger
	current   atomic.Pointer[cty.Resolver]
	state     state
	nextDelay func(now time.Time) time.Duration
	retryBase time.Duration
}

// New validates cfg and returns an empty holder. Call Load or Refresh before
// looking anything up.
func New(cfg config.CTYConfig, logger *zap.Logger) (*Holder, error) {
	format, err := cty.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	hour, minute, err := cfg.RefreshHourMinute()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Holder{
		cfg:       cfg,
		format:    cty.DetectFormat(cfg.File, format),
		logger:    logger,
		retryBase: retryBase,
	}
	h.state.lastError.Store("")
	h.nextDelay = func(now time.Time) time.Duration {
		return NextDelay(hour, minute, now)
	}
	return h, nil
}

// Resolver returns the current resolver, or nil before the first load.
func (h *Holder) Resolver() *cty.Resolver {
	return h.current.Load()
}

// Table returns the current table, or nil before the first load.
func (h *Holder) Table() *cty.Table {
	return h.current.Load().Table()
}

// Lookup resolves callsign against the current table.
func (h *Holder) Lookup(callsign string) (cty.Entity, bool) {
	return h.current.Load().Lookup(callsign)
}

// Load reads the configured file, downloading it first when it does not
// exist and a URL is configured.
func (h *Holder) Load(ctx context.Context) error {
	path := strings.TrimSpace(h.cfg.File)
	if path == "" {
		return errors.New("cty: file path is empty")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && strings.TrimSpace(h.cfg.URL) != "" {
		_, err := h.Refresh(ctx)
		return err
	}
	t, err := cty.LoadFile(path, h.format, cty.WithLogger(h.logger))
	if err != nil {
		h.state.recordFailure(time.Now().UTC(), err)
		return err
	}
	h.swap(t)
	h.state.recordSuccess(time.Now().UTC())
	return nil
}

// Refresh downloads the configured URL and swaps in the new table when its
// content differs from the current one. It reports whether a swap happened.
func (h *Holder) Refresh(ctx context.Context) (bool, error) {
	return h.refreshAndRecord(ctx, false)
}

// ForceRefresh is Refresh without conditional request headers or the
// same-content shortcut, so the body is always fetched and parsed again.
func (h *Holder) ForceRefresh(ctx context.Context) (bool, error) {
	return h.refreshAndRecord(ctx, true)
}

func (h *Holder) refreshAndRecord(ctx context.Context, force bool) (bool, error) {
	swapped, err := h.refresh(ctx, force)
	now := time.Now().UTC()
	if err != nil {
		h.state.recordFailure(now, err)
		return false, err
	}
	h.state.recordSuccess(now)
	return swapped, nil
}

func (h *Holder) refresh(ctx context.Context, force bool) (bool, error) {
	url := strings.TrimSpace(h.cfg.URL)
	path := strings.TrimSpace(h.cfg.File)
	if url == "" {
		return false, errors.New("cty: URL is empty")
	}
	if path == "" {
		return false, errors.New("cty: file path is empty")
	}

	var fresh *cty.Table
	res, err := download.Download(ctx, download.Request{
		URL:          url,
		Destination:  path,
		Timeout:      h.cfg.DownloadTimeout(),
		Force:        force,
		MetadataPath: h.cfg.StatusPath(),
		UserAgent:    userAgent,
		Logger:       h.logger,
		Validate: func(tmp string) error {
			t, err := cty.LoadFile(tmp, h.format)
			if err != nil {
				return err
			}
			fresh = t
			return nil
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "cty")
	}
	h.logger.Info("cty download checked",
		zap.String("url", url),
		zap.String("status", string(res.Status)),
		zap.String("size", humanize.Bytes(uint64(res.Bytes))),
	)

	if fresh == nil {
		if h.current.Load() != nil {
			return false, nil
		}
		// Unchanged upstream but nothing loaded yet in this process.
		if fresh, err = cty.LoadFile(path, h.format); err != nil {
			return false, err
		}
	}
	if cur := h.Table(); cur != nil && cur.Fingerprint() == fresh.Fingerprint() {
		return false, nil
	}
	h.swap(fresh)
	return true, nil
}

func (h *Holder) swap(t *cty.Table) {
	h.current.Store(cty.NewResolver(t, h.cfg.CacheSize))
	h.logger.Info("cty table active",
		zap.Int("keys", t.Len()),
		zap.String("fingerprint", fmt.Sprintf("%016x", t.Fingerprint())),
	)
}

// Run refreshes on the configured daily schedule until ctx is canceled,
// retrying failures with exponential backoff.
func (h *Holder) Run(ctx context.Context) {
	for {
		if !sleepWithContext(ctx, h.nextDelay(time.Now().UTC())) {
			return
		}
		backoff := h.retryBase
		attempt := 0
		for {
			swapped, err := h.Refresh(ctx)
			if err == nil {
				h.logger.Info("scheduled cty refresh complete", zap.Bool("swapped", swapped))
				break
			}
			attempt++
			h.logger.Warn("scheduled cty refresh failed",
				zap.Int("attempt", attempt),
				zap.String("last_success", h.Status().LastSuccessHuman()),
				zap.Duration("next_retry", backoff),
				zap.Error(err),
			)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > retryMax {
				backoff = retryMax
			}
		}
	}
}

// NextDelay returns the time from now until the next hour:minute UTC.
func NextDelay(hour, minute int, now time.Time) time.Duration {
	now = now.UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}
	return target.Sub(now)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type state struct {
	lastSuccess  atomic.Int64
	lastFailure  atomic.Int64
	failureCount atomic.Int64
	lastError    atomic.Value
}

func (s *state) recordSuccess(now time.Time) {
	s.lastSuccess.Store(now.Unix())
	s.failureCount.Store(0)
	s.lastError.Store("")
}

func (s *state) recordFailure(now time.Time, err error) {
	s.lastFailure.Store(now.Unix())
	s.failureCount.Add(1)
	if err != nil {
		s.lastError.Store(err.Error())
	}
}

// Status is a snapshot of refresh health.
type Status struct {
	LastSuccess time.Time
	LastFailure time.Time
	Failures    int64 // consecutive, reset on success
	LastError   string
}

// Status returns the current refresh health.
func (h *Holder) Status() Status {
	var st Status
	if ts := h.state.lastSuccess.Load(); ts > 0 {
		st.LastSuccess = time.Unix(ts, 0).UTC()
	}
	if ts := h.state.lastFailure.Load(); ts > 0 {
		st.LastFailure = time.Unix(ts, 0).UTC()
	}
	st.Failures = h.state.failureCount.Load()
	st.LastError, _ = h.state.lastError.Load().(string)
	return st
}

// LastSuccessHuman renders the last success relative to now.
func (s Status) LastSuccessHuman() string {
	if s.LastSuccess.IsZero() {
		return "never"
	}
	return humanize.Time(s.LastSuccess)
}
