// Package download fetches the CTY source over HTTP with conditional requests
// and a JSON sidecar recording what was fetched, so unchanged files are not
// re-downloaded or reloaded.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const MetadataSuffix = ".status.json"

// Status indicates whether the remote content changed.
type Status string

const (
	StatusUpdated     Status = "updated"
	StatusNotModified Status = "not_modified"
	StatusSameContent Status = "same_content"
)

// Metadata tracks the last successful download or check of a file.
type Metadata struct {
	URL          string    `json:"url,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
	CheckedAt    time.Time `json:"checked_at,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
	ValidatedAt  time.Time `json:"validated_at,omitempty"`
}

// Request configures a download.
type Request struct {
	URL          string
	Destination  string
	Timeout      time.Duration
	Force        bool
	MetadataPath string
	UserAgent    string
	// Validate, when set, is run against the downloaded temp file before it
	// replaces Destination. An error leaves Destination untouched.
	Validate func(path string) error
	Logger   *zap.Logger
}

// Result summarizes the download outcome.
type Result struct {
	Status Status
	Meta   Metadata
	Bytes  int64
}

// MetadataPath returns the default metadata sidecar path for a destination.
func MetadataPath(dest string) string {
	if strings.TrimSpace(dest) == "" {
		return ""
	}
	return dest + MetadataSuffix
}

// Download fetches req.URL into req.Destination unless the server reports it
// unchanged (ETag/Last-Modified) or the body hashes the same as the last
// download. The destination is replaced atomically.
func Download(ctx context.Context, req Request) (Result, error) {
	var result Result
	url := strings.TrimSpace(req.URL)
	dest := strings.TrimSpace(req.Destination)
	if url == "" {
		return result, errors.New("download: URL is empty")
	}
	if dest == "" {
		return result, errors.New("download: destination is empty")
	}
	logger := req.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metaPath := strings.TrimSpace(req.MetadataPath)
	if metaPath == "" {
		metaPath = MetadataPath(dest)
	}

	destInfo, err := os.Stat(dest)
	destExists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return result, errors.Wrap(err, "download: stat destination")
	}

	prevMeta := ReadMetadata(metaPath)
	if prevMeta == nil && destExists {
		prevMeta = &Metadata{
			LastModified: destInfo.ModTime().UTC().Format(http.TimeFormat),
			SizeBytes:    destInfo.Size(),
		}
	}
	force := req.Force || !destExists

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return result, errors.Wrap(err, "download: build request")
	}
	if !force && prevMeta != nil {
		if prevMeta.ETag != "" {
			httpReq.Header.Set("If-None-Match", prevMeta.ETag)
		}
		if prevMeta.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", prevMeta.LastModified)
		}
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return result, errors.Wrap(err, "download: fetch failed")
	}
	defer resp.Body.Close()

	now := time.Now().UTC()
	if resp.StatusCode == http.StatusNotModified {
		result.Status = StatusNotModified
		result.Meta = mergeMetadata(prevMeta, url, resp, now, "")
		writeMetadataLogged(logger, metaPath, result.Meta)
		return result, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return result, errors.Newf("download: fetch failed: status %s", resp.Status)
	}

	if err := ensureParentDir(dest); err != nil {
		return result, err
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), "download-*.tmp")
	if err != nil {
		return result, errors.Wrap(err, "download: create temp file")
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName)

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmpFile, hasher), resp.Body)
	if err != nil {
		tmpFile.Close()
		return result, errors.Wrap(err, "download: copy body")
	}
	if err := tmpFile.Close(); err != nil {
		return result, errors.Wrap(err, "download: finalize temp file")
	}
	if written <= 0 {
		return result, errors.New("download: empty response body")
	}
	hashHex := hex.EncodeToString(hasher.Sum(nil))
	result.Bytes = written

	if !force && destExists && prevMeta != nil && prevMeta.SHA256 == hashHex {
		result.Status = StatusSameContent
		result.Meta = mergeMetadata(prevMeta, url, resp, now, hashHex)
		writeMetadataLogged(logger, metaPath, result.Meta)
		return result, nil
	}

	meta := mergeMetadata(prevMeta, url, resp, now, hashHex)
	if req.Validate != nil {
		if err := req.Validate(tmpName); err != nil {
			return result, errors.Wrapf(err, "download: validate %s", url)
		}
		meta.ValidatedAt = now
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return result, errors.Wrap(err, "download: replace file")
	}

	result.Status = StatusUpdated
	meta.DownloadedAt = now
	meta.SizeBytes = written
	result.Meta = meta
	writeMetadataLogged(logger, metaPath, meta)
	return result, nil
}

// ReadMetadata reads a metadata sidecar. It returns nil when the file is
// missing or unreadable.
func ReadMetadata(path string) *Metadata {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

// WriteMetadata persists metadata as indented JSON.
func WriteMetadata(path string, meta Metadata) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("download: metadata path is empty")
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeMetadataLogged(logger *zap.Logger, path string, meta Metadata) {
	if err := WriteMetadata(path, meta); err != nil {
		logger.Warn("unable to write download metadata", zap.String("path", path), zap.Error(err))
	}
}

func mergeMetadata(prev *Metadata, url string, resp *http.Response, now time.Time, hash string) Metadata {
	meta := Metadata{}
	if prev != nil {
		meta = *prev
	}
	meta.URL = url
	meta.CheckedAt = now
	if etag := strings.TrimSpace(resp.Header.Get("ETag")); etag != "" {
		meta.ETag = etag
	}
	if last := strings.TrimSpace(resp.Header.Get("Last-Modified")); last != "" {
		meta.LastModified = last
	}
	if hash != "" {
		meta.SHA256 = hash
	}
	return meta
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "download: create directory")
	}
	return nil
}
