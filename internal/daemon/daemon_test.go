package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/daemon"
	"reelsmith/internal/logging"
	"reelsmith/internal/testsupport"
)

func startDaemon(t *testing.T) (*daemon.Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, db, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.MediaDir, "probe.txt"), []byte("served"), 0o644))
	return d, "http://" + d.Addr()
}

func TestDaemonServesAPIAndMedia(t *testing.T) {
	_, base := startDaemon(t)

	resp, err := http.Get(base + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Running bool `json:"running"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Running)

	media, err := http.Get(base + "/media/probe.txt")
	require.NoError(t, err)
	defer media.Body.Close()
	require.Equal(t, http.StatusOK, media.StatusCode)
	content, err := io.ReadAll(media.Body)
	require.NoError(t, err)
	require.Equal(t, "served", string(content))
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, db, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	// Same data dir means the same lock file.
	second, err := daemon.New(cfg, db, logging.NewNop())
	require.NoError(t, err)
	err = second.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")
}

func TestDaemonStopsOnContextCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, db, logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(ctx))
	addr := d.Addr()
	cancel()

	// The listener closes shortly after cancellation.
	require.Eventually(t, func() bool {
		_, err := http.Get(fmt.Sprintf("http://%s/api/status", addr))
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
}
