package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctyBody = "Singapore: 28: 54: AS: 1.37: -103.78: -8.0: 9V:\n    9V,S6;\n"

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func fetch(t *testing.T, url, dest string) Result {
	t.Helper()
	res, err := Download(testContext(t), Request{URL: url, Destination: dest, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return res
}

func TestDownloadUpdated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		_, _ = w.Write([]byte(ctyBody))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty", "cty.dat")
	res := fetch(t, server.URL, dest)
	assert.Equal(t, StatusUpdated, res.Status)
	assert.EqualValues(t, len(ctyBody), res.Bytes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, ctyBody, string(data))

	meta := ReadMetadata(MetadataPath(dest))
	require.NotNil(t, meta)
	assert.Equal(t, `"v1"`, meta.ETag)
	assert.NotEmpty(t, meta.SHA256)
	assert.Equal(t, server.URL, meta.URL)
}

func TestDownloadNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(ctyBody))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty.dat")
	first := fetch(t, server.URL, dest)
	require.Equal(t, StatusUpdated, first.Status)
	before := ReadMetadata(MetadataPath(dest))
	require.NotNil(t, before)

	time.Sleep(10 * time.Millisecond)
	second := fetch(t, server.URL, dest)
	assert.Equal(t, StatusNotModified, second.Status)
	after := ReadMetadata(MetadataPath(dest))
	require.NotNil(t, after)
	assert.True(t, after.DownloadedAt.Equal(before.DownloadedAt))
	assert.True(t, after.CheckedAt.After(before.CheckedAt))
}

func TestDownloadSameContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ctyBody))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty.dat")
	require.Equal(t, StatusUpdated, fetch(t, server.URL, dest).Status)
	assert.Equal(t, StatusSameContent, fetch(t, server.URL, dest).Status)
}

func TestDownloadValidateFailureKeepsOldFile(t *testing.T) {
	var body atomic.Value
	body.Store(ctyBody)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "cty.dat")
	require.Equal(t, StatusUpdated, fetch(t, server.URL, dest).Status)

	body.Store("<html>maintenance</html>")
	broken := errors.New("not a cty file")
	_, err := Download(testContext(t), Request{
		URL:         server.URL,
		Destination: dest,
		Validate: func(path string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if strings.HasPrefix(string(data), "<html>") {
				return broken
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, broken))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, ctyBody, string(data))
}

func TestDownloadErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "gone", http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	dest := filepath.Join(t.TempDir(), "cty.dat")

	_, err := Download(testContext(t), Request{URL: server.URL + "/missing", Destination: dest})
	assert.ErrorContains(t, err, "404")
	_, err = Download(testContext(t), Request{URL: server.URL + "/empty", Destination: dest})
	assert.ErrorContains(t, err, "empty response body")
	_, err = Download(testContext(t), Request{Destination: dest})
	assert.Error(t, err)
	_, err = Download(testContext(t), Request{URL: server.URL})
	assert.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}
