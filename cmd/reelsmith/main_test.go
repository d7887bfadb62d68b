package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"reelsmith/internal/daemon"
	"reelsmith/internal/logging"
	"reelsmith/internal/testsupport"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	require.NoError(t, err)
	require.Contains(t, out, target)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(content), "[llm]")

	// A second init must not clobber the file.
	_, err = runCommand(t, "config", "init", "--path", target)
	require.Error(t, err)
}

func TestStatusCommandAgainstDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)
	testsupport.NewProject(t, db, "Roman Aqueducts")

	d, err := daemon.New(cfg, db, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
work_dir = %q
media_dir = %q
log_dir = %q
api_bind = %q
media_base_url = %q

[llm]
api_key = "test"
`,
		cfg.Paths.DataDir, cfg.Paths.WorkDir, cfg.Paths.MediaDir,
		cfg.Paths.LogDir, d.Addr(), "http://"+d.Addr()+"/media")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	out, err := runCommand(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "Daemon: running")
	require.Contains(t, out, "researching")

	listOut, err := runCommand(t, "projects", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, listOut, "Roman Aqueducts")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "exactlyten", truncate("exactlyten", 10))
	require.Equal(t, "toolongfo…", truncate("toolongforthis", 10))
}
