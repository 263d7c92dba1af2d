package updatefetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/kidsbeats/internal/config"
	"fknsrs.biz/p/kidsbeats/internal/ctxconfig"
	"fknsrs.biz/p/kidsbeats/internal/updatefetch"
)

func testContext(t *testing.T, cfg config.Config) context.Context {
	t.Helper()

	if cfg.ApplicationDataPath == "" {
		cfg.ApplicationDataPath = t.TempDir()
	}

	return ctxconfig.WithConfig(context.Background(), cfg)
}

func TestCheckLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("content-type", "application/json")
		rw.Write([]byte(`{"version":"2.4.0","url":"https://updates.example.com/2.4.0.pkg","notes":"bug fixes","size":1048576}`))
	}))
	defer server.Close()

	ctx := testContext(t, config.Config{UpdateManifestURL: server.URL})

	m, err := updatefetch.CheckLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.4.0", m.Version)
	assert.Equal(t, "https://updates.example.com/2.4.0.pkg", m.URL)
	assert.Equal(t, "bug fixes", m.Notes)
	assert.Equal(t, int64(1048576), m.Size)
}

func TestCheckLatestRejectsBadManifests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"notes":"no version here"}`))
	}))
	defer server.Close()

	ctx := testContext(t, config.Config{UpdateManifestURL: server.URL})

	_, err := updatefetch.CheckLatest(ctx)
	assert.Error(t, err)

	_, err = updatefetch.CheckLatest(testContext(t, config.Config{}))
	assert.ErrorIs(t, err, updatefetch.ErrNoManifestURL)
}

func TestDownloadCompletes(t *testing.T) {
	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write(payload)
	}))
	defer server.Close()

	ctx := testContext(t, config.Config{})

	f := updatefetch.NewFetcher()

	d, err := f.Start(ctx, server.URL, "2.4.0")
	require.NoError(t, err)

	d.Wait()

	status := d.Status()
	assert.Equal(t, updatefetch.StateCompleted, status.State)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, "2.4.0", status.Version)
	require.NotEmpty(t, status.Path)

	written, err := os.ReadFile(status.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, written)

	// no partial file left behind
	_, err = os.Stat(status.Path + ".partial")
	assert.True(t, os.IsNotExist(err))

	assert.Same(t, d, f.Current())
}

func TestDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx := testContext(t, config.Config{})

	f := updatefetch.NewFetcher()

	d, err := f.Start(ctx, server.URL, "2.4.0")
	require.NoError(t, err)

	d.Wait()

	status := d.Status()
	assert.Equal(t, updatefetch.StateFailed, status.State)
	assert.Contains(t, status.Error, "500")
	assert.Empty(t, status.Path)
}

func TestCancelDiscardsPartialFile(t *testing.T) {
	started := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("content-length", "1048576")
		rw.Write(make([]byte, 32*1024))
		rw.(http.Flusher).Flush()
		close(started)

		// stall until the client goes away
		<-r.Context().Done()
	}))
	defer server.Close()

	dataPath := t.TempDir()
	ctx := testContext(t, config.Config{ApplicationDataPath: dataPath})

	f := updatefetch.NewFetcher()

	d, err := f.Start(ctx, server.URL, "2.4.0")
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the download start")
	}

	d.Cancel()

	status := d.Status()
	assert.Equal(t, updatefetch.StateNotStarted, status.State)
	assert.Equal(t, 0, status.Progress)
	assert.Empty(t, status.Error)

	entries, err := os.ReadDir(filepath.Join(dataPath, "updates"))
	require.NoError(t, err)
	assert.Empty(t, entries, "cancel should discard the partial file")
}

func TestStartRefusesConcurrentDownloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("content-length", "1048576")
		rw.Write(make([]byte, 1024))
		rw.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx := testContext(t, config.Config{})

	f := updatefetch.NewFetcher()

	d, err := f.Start(ctx, server.URL, "2.4.0")
	require.NoError(t, err)
	defer d.Cancel()

	_, err = f.Start(ctx, server.URL, "2.5.0")
	assert.ErrorIs(t, err, updatefetch.ErrDownloadInProgress)
}

func TestInstall(t *testing.T) {
	ctx := testContext(t, config.Config{UpdateInstallCommand: "true"})

	err := updatefetch.Install(ctx, filepath.Join(t.TempDir(), "missing.pkg"))
	assert.Error(t, err, "a missing package path should be an error")

	path := filepath.Join(t.TempDir(), "update.pkg")
	require.NoError(t, os.WriteFile(path, []byte("package"), 0o644))

	assert.NoError(t, updatefetch.Install(ctx, path))

	assert.ErrorIs(t, updatefetch.Install(testContext(t, config.Config{}), path), updatefetch.ErrNoInstallCommand)
}
