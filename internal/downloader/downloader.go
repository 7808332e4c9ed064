// Package downloader implements the Downloader capability (spec §4.2):
// turning a source URL into one or more local media files the rest of the
// pipeline can operate on. The upstream platform scraping clients
// (YouTube/TikTok/Instagram) are out of scope for this core; this package
// ships only the contract and a manual/stub variant that resolves a URL
// against pre-supplied local media, so a production deployment can wire a
// real per-platform client behind the same interface.
package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/h2non/filetype"

	"github.com/moveset-labs/clipcore/internal/platform/logger"
)

// Kind classifies why a download failed.
type Kind string

const (
	KindUnsupported Kind = "unsupported"
	KindNotFound    Kind = "not_found"
	KindAuth        Kind = "auth"
	KindNetwork     Kind = "network"
	KindDecode      Kind = "decode"
)

// Error is the typed failure a Downloader implementation returns.
type Error struct {
	Kind  Kind
	URL   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("download %s failed (%s): %v", e.URL, e.Kind, e.Cause)
	}
	return fmt.Sprintf("download %s failed (%s)", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Result is the Downloader's output. The core treats it as untrusted: file
// existence does not imply playability, so callers must probe before use.
type Result struct {
	MediaFiles []string
	Metadata   map[string]any
	TempDir    string
}

type Downloader interface {
	Download(ctx context.Context, url string) (*Result, error)
}

// Source is one pre-supplied local media entry a manual Downloader can
// resolve a normalized URL to. Carousels are modeled as multiple MediaFiles
// in stable order, one per item.
type Source struct {
	MediaFiles []string
	Metadata   map[string]any
}

// Manual is a stub Downloader for deployments that stage media out-of-band
// (a human, a batch import job, or a platform client running outside this
// core) and register the result against the normalized URL before the
// Orchestrator runs.
type Manual struct {
	log *logger.Logger

	mu      sync.RWMutex
	sources map[string]Source
}

func NewManual(log *logger.Logger) *Manual {
	return &Manual{
		log:     log.With("service", "ManualDownloader"),
		sources: make(map[string]Source),
	}
}

// Register associates a normalized URL with pre-staged local media. Calling
// it again for the same URL replaces the prior registration.
func (m *Manual) Register(normalizedURL string, src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[normalizedURL] = src
}

func (m *Manual) Download(ctx context.Context, url string) (*Result, error) {
	m.mu.RLock()
	src, ok := m.sources[url]
	m.mu.RUnlock()
	if !ok {
		return nil, &Error{Kind: KindNotFound, URL: url, Cause: fmt.Errorf("no media registered for url")}
	}
	if len(src.MediaFiles) == 0 {
		return nil, &Error{Kind: KindDecode, URL: url, Cause: fmt.Errorf("registered source has no media files")}
	}

	files := make([]string, 0, len(src.MediaFiles))
	var tempDir string
	for _, f := range src.MediaFiles {
		info, err := os.Stat(f)
		if err != nil {
			return nil, &Error{Kind: KindNotFound, URL: url, Cause: fmt.Errorf("media file %s: %w", f, err)}
		}
		if info.Size() == 0 {
			return nil, &Error{Kind: KindDecode, URL: url, Cause: fmt.Errorf("media file %s is empty", f)}
		}
		if err := validateVideoContainer(f); err != nil {
			return nil, &Error{Kind: KindDecode, URL: url, Cause: err}
		}
		if tempDir == "" {
			tempDir = filepath.Dir(f)
		}
		files = append(files, f)
	}
	sort.Strings(files)

	meta := make(map[string]any, len(src.Metadata))
	for k, v := range src.Metadata {
		meta[k] = v
	}

	m.log.Info("resolved manual download", "url", url, "media_files", len(files))
	return &Result{MediaFiles: files, Metadata: meta, TempDir: tempDir}, nil
}

// validateVideoContainer sniffs a media file's magic bytes and rejects
// anything that isn't a recognized video container. File existence and a
// non-zero size don't imply playability (an aborted or HTML-error download
// can land on disk with either), so this is the Downloader's one chance to
// catch that before the rest of the pipeline wastes work on it.
func validateVideoContainer(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read %s: %w", path, err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return fmt.Errorf("sniff %s: %w", path, err)
	}
	if kind == filetype.Unknown || kind.MIME.Type != "video" {
		return fmt.Errorf("%s is not a recognized video container (detected %q)", path, kind.Extension)
	}
	return nil
}

// Classify maps a raw os/net error into a Kind, for callers that wrap a real
// platform client behind this interface and need to translate its errors
// into the shared taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "login"):
		return KindAuth
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return KindNotFound
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "dns"):
		return KindNetwork
	case strings.Contains(msg, "decode") || strings.Contains(msg, "corrupt") || strings.Contains(msg, "unsupported format"):
		return KindDecode
	default:
		return KindNetwork
	}
}
