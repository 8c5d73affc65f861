// Package download fetches remote JSON artifacts into the data directory,
// replacing files atomically and recording a metadata sidecar next to them.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const MetadataSuffix = ".status.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata tracks the last successful download of an artifact.
type Metadata struct {
	URL          string    `json:"url,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
}

// Request configures a single download.
type Request struct {
	URL         string
	Destination string
	Header      http.Header
}

// Result summarizes the download outcome. StatusCode is set whenever the
// server answered, including non-success answers.
type Result struct {
	StatusCode int
	Bytes      int64
	Meta       Metadata
}

// MetadataPath returns the default metadata sidecar path for a destination.
func MetadataPath(dest string) string {
	if strings.TrimSpace(dest) == "" {
		return ""
	}
	return dest + MetadataSuffix
}

// Exists reports whether the destination artifact is already on disk.
func Exists(dest string) bool {
	info, err := os.Stat(dest)
	return err == nil && !info.IsDir()
}

// Purpose: Download a URL into dest when the server answers 200.
// Key aspects: When dest exists its sidecar validators are sent, and a 304
// keeps the file and returns the previous metadata. Other non-success
// statuses leave dest untouched and are reported via StatusCode without an
// error; transport failures return an error.
// Upstream: pota.Client.DownloadParks.
// Downstream: http.Client.Do, WriteFileAtomic, WriteMetadata.
func Download(ctx context.Context, client *http.Client, req Request) (Result, error) {
	var result Result
	url := strings.TrimSpace(req.URL)
	dest := strings.TrimSpace(req.Destination)
	if url == "" {
		return result, errors.New("download: URL is empty")
	}
	if dest == "" {
		return result, errors.New("download: destination is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result, fmt.Errorf("download: build request: %w", err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	var prevMeta *Metadata
	if Exists(dest) {
		prevMeta = ReadMetadata(MetadataPath(dest))
	}
	if prevMeta != nil {
		if prevMeta.ETag != "" {
			httpReq.Header.Set("If-None-Match", prevMeta.ETag)
		}
		if prevMeta.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", prevMeta.LastModified)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("download: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode == http.StatusNotModified && prevMeta != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		result.Meta = *prevMeta
		return result, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return result, nil
	}

	hasher := sha256.New()
	body, err := io.ReadAll(io.TeeReader(resp.Body, hasher))
	if err != nil {
		return result, fmt.Errorf("download: read body: %w", err)
	}
	if len(body) == 0 {
		return result, errors.New("download: empty response body")
	}
	if err := WriteFileAtomic(dest, body); err != nil {
		return result, err
	}

	now := time.Now().UTC()
	result.Bytes = int64(len(body))
	result.Meta = Metadata{
		URL:          url,
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
		DownloadedAt: now,
		SizeBytes:    result.Bytes,
		SHA256:       hex.EncodeToString(hasher.Sum(nil)),
	}
	if err := WriteMetadata(MetadataPath(dest), result.Meta); err != nil {
		log.Printf("Warning: unable to write metadata %s: %v", MetadataPath(dest), err)
	}
	return result, nil
}

// Purpose: Replace path with data without exposing a partially written file.
// Key aspects: Temp file in the same directory, then rename over the target.
// Upstream: Download, pota.Client.Locations.
// Downstream: os.CreateTemp, os.Rename.
func WriteFileAtomic(path string, data []byte) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "download-*.tmp")
	if err != nil {
		return fmt.Errorf("download: create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("download: write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("download: finalize temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("download: replace file: %w", err)
	}
	return nil
}

// ReadMetadata reads the sidecar for dest; nil when missing or unreadable.
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

// WriteMetadata persists metadata JSON to disk.
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

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("download: create directory: %w", err)
	}
	return nil
}
