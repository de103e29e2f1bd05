package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFlagsAppliesDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Parse([]string{"-name", "rm-1", "-addr", "127.0.0.1:9999"}))

	require.Equal(t, "rm-1", cfg.Name)
	require.Equal(t, "127.0.0.1:9999", cfg.Addr)
	require.Equal(t, "127.0.0.1:9999", cfg.AdvertiseAddr)
	require.Equal(t, []string{"127.0.0.1:2379"}, cfg.EtcdEndpoints())
}

func TestParseRejectsUnknownPositionalArgs(t *testing.T) {
	cfg := NewConfig()
	require.Error(t, cfg.Parse([]string{"garbage"}))
}

func TestParseLoadsConfigFileThenLetsFlagsWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rm.toml")
	contents := `
name = "from-file"
addr = "127.0.0.1:1111"
etcd-endpoints = "10.0.0.1:2379,10.0.0.2:2379"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.Parse([]string{"-config", path, "-addr", "127.0.0.1:2222"}))

	require.Equal(t, "from-file", cfg.Name)
	require.Equal(t, "127.0.0.1:2222", cfg.Addr, "flags must win over the config file")
	require.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.EtcdEndpoints())
}

func TestTimeoutConfigAdjustRaisesTooShortTimeouts(t *testing.T) {
	tc := TimeoutConfig{
		TaskManagerHeartbeatInterval: time.Second,
		TaskManagerHeartbeatTimeout:  time.Millisecond,
	}.Adjust()

	require.GreaterOrEqual(t, tc.TaskManagerHeartbeatTimeout, 2*time.Second+3*time.Second)
}
