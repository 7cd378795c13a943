package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctydat/config"
)

const (
	ctyV1 = "Singapore: 28: 54: AS: 1.37: -103.78: -8.0: 9V:\n    9V,S6;\n"
	ctyV2 = ctyV1 + "Fed. Rep. of Germany: 14: 28: EU: 51.00: -10.00: -1.0: DL:\n    DA,DL1(15);\n"
)

type ctyServer struct {
	body atomic.Value
	hits atomic.Int64
	*httptest.Server
}

func newCTYServer(t *testing.T, body string) *ctyServer {
	t.Helper()
	s := &ctyServer{}
	s.body.Store(body)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		_, _ = w.Write([]byte(s.body.Load().(string)))
	}))
	t.Cleanup(s.Close)
	return s
}

func newHolder(t *testing.T, url, file string) *Holder {
	t.Helper()
	cfg := config.Default().CTY
	cfg.URL = url
	cfg.File = file
	h, err := New(cfg, nil)
	require.NoError(t, err)
	return h
}

func TestLoadDownloadsMissingFile(t *testing.T) {
	srv := newCTYServer(t, ctyV1)
	file := filepath.Join(t.TempDir(), "cty.dat")
	h := newHolder(t, srv.URL, file)

	_, ok := h.Lookup("S6ABC")
	assert.False(t, ok, "nothing loaded yet")

	require.NoError(t, h.Load(context.Background()))
	e, ok := h.Lookup("S6ABC")
	require.True(t, ok)
	assert.Equal(t, "Singapore", e.Name)
	assert.FileExists(t, file)
	assert.False(t, h.Status().LastSuccess.IsZero())
}

func TestLoadExistingFileWithoutURL(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cty.dat")
	require.NoError(t, os.WriteFile(file, []byte(ctyV2), 0o644))
	h := newHolder(t, "", file)

	require.NoError(t, h.Load(context.Background()))
	e, ok := h.Lookup("DL1ABC")
	require.True(t, ok)
	assert.Equal(t, 15, e.CQZone)

	_, err := h.Refresh(context.Background())
	assert.Error(t, err, "refresh needs a URL")
}

func TestRefreshSwapsOnlyOnChange(t *testing.T) {
	srv := newCTYServer(t, ctyV1)
	h := newHolder(t, srv.URL, filepath.Join(t.TempDir(), "cty.dat"))
	ctx := context.Background()

	swapped, err := h.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, swapped)
	first := h.Table()

	swapped, err = h.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Same(t, first, h.Table())

	srv.body.Store(ctyV2)
	swapped, err = h.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.NotEqual(t, first.Fingerprint(), h.Table().Fingerprint())
	_, ok := h.Lookup("DA0HQ")
	assert.True(t, ok)
}

func TestForceRefreshRefetchesButKeepsIdenticalTable(t *testing.T) {
	srv := newCTYServer(t, ctyV1)
	dir := t.TempDir()
	h := newHolder(t, srv.URL, filepath.Join(dir, "cty.dat"))
	h.cfg.StatusFile = filepath.Join(dir, "cty.meta.json")
	ctx := context.Background()

	_, err := h.Refresh(ctx)
	require.NoError(t, err)
	first := h.Table()
	assert.FileExists(t, h.cfg.StatusFile)

	swapped, err := h.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.False(t, swapped, "same content keeps the current table")
	assert.Same(t, first, h.Table())
	assert.EqualValues(t, 2, srv.hits.Load())

	srv.body.Store(ctyV2)
	swapped, err = h.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, swapped)
}

func TestRefreshKeepsTableOnBadDownload(t *testing.T) {
	srv := newCTYServer(t, ctyV1)
	h := newHolder(t, srv.URL, filepath.Join(t.TempDir(), "cty.dat"))
	ctx := context.Background()
	_, err := h.Refresh(ctx)
	require.NoError(t, err)
	before := h.Table()

	srv.body.Store("Broken: xx: 54: AS: 1.37: -103.78: -8.0: 9V:\n")
	_, err = h.Refresh(ctx)
	require.Error(t, err)
	assert.Same(t, before, h.Table())

	st := h.Status()
	assert.EqualValues(t, 1, st.Failures)
	assert.Contains(t, st.LastError, "cq zone")
	assert.NotEqual(t, "never", st.LastSuccessHuman())
}

func TestRunRefreshesOnSchedule(t *testing.T) {
	srv := newCTYServer(t, ctyV1)
	h := newHolder(t, srv.URL, filepath.Join(t.TempDir(), "cty.dat"))
	h.nextDelay = func(time.Time) time.Duration { return 5 * time.Millisecond }
	h.retryBase = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := h.Lookup("9V1AA")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	srv.body.Store(ctyV2)
	require.Eventually(t, func() bool {
		_, ok := h.Lookup("DL1AA")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestNextDelay(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, 15*time.Minute, NextDelay(0, 45, now))
	assert.Equal(t, 24*time.Hour, NextDelay(0, 30, now))
	assert.Equal(t, 23*time.Hour+30*time.Minute, NextDelay(0, 0, now))
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default().CTY
	cfg.Format = "csv"
	_, err := New(cfg, nil)
	assert.Error(t, err)

	cfg = config.Default().CTY
	cfg.RefreshUTC = "25:99"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
