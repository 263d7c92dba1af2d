// Package updatefetch downloads application update packages in the
// background. A download is a handle the caller can poll and cancel; the
// rest of the app watches it rather than blocking on it.
package updatefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Jeffail/gabs/v2"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/kidsbeats/internal/ctxconfig"
	"fknsrs.biz/p/kidsbeats/internal/ctxhttpclient"
	"fknsrs.biz/p/kidsbeats/internal/ctxlogger"
)

var (
	ErrNoManifestURL      = fmt.Errorf("updatefetch: no update manifest url configured")
	ErrDownloadInProgress = fmt.Errorf("updatefetch: a download is already in progress")
	ErrNoInstallCommand   = fmt.Errorf("updatefetch: no install command configured")
)

// Manifest is the published description of the latest release.
type Manifest struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	Notes   string `json:"notes"`
	Size    int64  `json:"size"`
}

// CheckLatest fetches and parses the update manifest.
func CheckLatest(ctx context.Context) (*Manifest, error) {
	cfg := ctxconfig.GetConfig(ctx)

	if cfg.UpdateManifestURL == "" {
		return nil, ErrNoManifestURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UpdateManifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("updatefetch.CheckLatest: %w", err)
	}

	res, err := ctxhttpclient.GetHTTPClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("updatefetch.CheckLatest: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updatefetch.CheckLatest: manifest fetch returned status %d", res.StatusCode)
	}

	doc, err := gabs.ParseJSONBuffer(res.Body)
	if err != nil {
		return nil, fmt.Errorf("updatefetch.CheckLatest: could not parse manifest: %w", err)
	}

	var m Manifest

	version, ok := doc.Path("version").Data().(string)
	if !ok || version == "" {
		return nil, fmt.Errorf("updatefetch.CheckLatest: manifest is missing a version")
	}
	m.Version = version

	packageURL, ok := doc.Path("url").Data().(string)
	if !ok || packageURL == "" {
		return nil, fmt.Errorf("updatefetch.CheckLatest: manifest is missing a package url")
	}
	m.URL = packageURL

	if notes, ok := doc.Path("notes").Data().(string); ok {
		m.Notes = notes
	}
	if size, ok := doc.Path("size").Data().(float64); ok {
		m.Size = int64(size)
	}

	return &m, nil
}

type State int

const (
	StateNotStarted State = iota
	StateDownloading
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateDownloading:
		return "downloading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Status is a point-in-time snapshot of a download.
type Status struct {
	State    State  `json:"-"`
	StateStr string `json:"state"`
	Version  string `json:"version"`
	Progress int    `json:"progress"`
	Path     string `json:"path,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Download is a single in-flight (or finished) package transfer. All the
// mutable fields sit behind the mutex; readers only ever see them through
// Status.
type Download struct {
	version string
	path    string
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	state    State
	progress int
	err      error
}

func (d *Download) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Status{
		State:    d.state,
		StateStr: d.state.String(),
		Version:  d.version,
		Progress: d.progress,
	}

	if d.state == StateCompleted {
		s.Path = d.path
	}
	if d.err != nil {
		s.Error = d.err.Error()
	}

	return s
}

// Cancel stops the transfer and discards the partial file. The download goes
// back to not started, as if it never ran.
func (d *Download) Cancel() {
	d.cancel()
	<-d.done
}

// Wait blocks until the transfer has finished one way or another.
func (d *Download) Wait() {
	<-d.done
}

func (d *Download) setProgress(received, total int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if total > 0 {
		d.progress = int(received * 100 / total)
	} else {
		// length unknown; show movement rather than a truthful percentage
		d.progress = int((received / 1024) % 100)
	}
}

func (d *Download) finish(state State, err error) {
	d.mu.Lock()
	d.state = state
	d.err = err
	if state == StateCompleted {
		d.progress = 100
	}
	if state == StateNotStarted {
		d.progress = 0
	}
	d.mu.Unlock()

	close(d.done)
}

// Fetcher owns the one download slot. Starting a second download while one
// is running is refused rather than queued; the caller can cancel and retry.
type Fetcher struct {
	mu      sync.Mutex
	current *Download
}

func NewFetcher() *Fetcher {
	return &Fetcher{}
}

// Current returns the most recent download handle, which may already be
// finished, or nil if nothing was ever started.
func (f *Fetcher) Current() *Download {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.current
}

// Start begins fetching packageURL into the data directory. The transfer
// itself runs on its own context so it survives the request that kicked it
// off; only Cancel stops it.
func (f *Fetcher) Start(ctx context.Context, packageURL, version string) (*Download, error) {
	cfg := ctxconfig.GetConfig(ctx)
	client := ctxhttpclient.GetHTTPClient(ctx)
	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"component":      "updatefetch",
		"update_version": version,
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current != nil {
		if s := f.current.Status(); s.State == StateDownloading {
			return nil, ErrDownloadInProgress
		}
	}

	path := cfg.DataFile("updates", "update-"+version+".pkg")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("updatefetch.Fetcher.Start: %w", err)
	}

	dctx, cancel := context.WithCancel(context.Background())

	d := &Download{
		version: version,
		path:    path,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateDownloading,
	}

	f.current = d

	go d.run(dctx, client, l, packageURL)

	return d, nil
}

func (d *Download) run(ctx context.Context, client *http.Client, l logrus.FieldLogger, packageURL string) {
	partial := d.path + ".partial"

	err := d.transfer(ctx, client, packageURL, partial)

	switch {
	case err == nil:
		if err := os.Rename(partial, d.path); err != nil {
			os.Remove(partial)
			l.WithError(err).Error("could not move downloaded package into place")
			d.finish(StateFailed, err)
			return
		}

		l.Info("download completed")
		d.finish(StateCompleted, nil)
	case ctx.Err() != nil:
		os.Remove(partial)
		l.Info("download cancelled")
		d.finish(StateNotStarted, nil)
	default:
		os.Remove(partial)
		l.WithError(err).Error("download failed")
		d.finish(StateFailed, err)
	}
}

func (d *Download) transfer(ctx context.Context, client *http.Client, packageURL, partial string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, packageURL, nil)
	if err != nil {
		return fmt.Errorf("updatefetch.Download.transfer: %w", err)
	}

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("updatefetch.Download.transfer: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("updatefetch.Download.transfer: package fetch returned status %d", res.StatusCode)
	}

	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("updatefetch.Download.transfer: %w", err)
	}
	defer f.Close()

	var received int64
	buf := make([]byte, 32*1024)

	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("updatefetch.Download.transfer: %w", werr)
			}

			received += int64(n)
			d.setProgress(received, res.ContentLength)
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("updatefetch.Download.transfer: %w", err)
		}
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("updatefetch.Download.transfer: %w", err)
	}

	return nil
}

// Install hands a downloaded package to the configured install command. The
// package has to actually be there; a stale path from an old status
// response is an error, not a silent no-op.
func Install(ctx context.Context, path string) error {
	cfg := ctxconfig.GetConfig(ctx)

	if cfg.UpdateInstallCommand == "" {
		return ErrNoInstallCommand
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("updatefetch.Install: package not found at %s: %w", path, err)
	}

	parts := strings.Fields(cfg.UpdateInstallCommand)
	args := append(parts[1:], path)

	cmd := exec.CommandContext(ctx, parts[0], args...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("updatefetch.Install: install command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"component": "updatefetch",
		"path":      path,
	}).Info("install command finished")

	return nil
}
