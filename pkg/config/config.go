// Package config is the resource manager's flag-and-TOML configuration
// layer, mirroring the teacher's pkg/metastore/config.go.
package config

import (
	"bytes"
	"encoding/json"
	"flag"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/ElliotVilhelm/flink/pkg/rmerrors"
)

const (
	defaultAddr          = "127.0.0.1:10241"
	defaultEtcdEndpoints = "127.0.0.1:2379"
)

// NewConfig creates a Config pre-bound to its own flag set, the way the
// teacher's NewConfig does for the meta-store.
func NewConfig() *Config {
	cfg := &Config{
		Timeouts: DefaultTimeoutConfig(),
	}
	cfg.flagSet = flag.NewFlagSet("resourcemanager", flag.ContinueOnError)
	fs := cfg.flagSet

	fs.StringVar(&cfg.Name, "name", "", "human-readable id for this resource manager node")
	fs.StringVar(&cfg.Addr, "addr", defaultAddr, "listen address for the resource manager RPC server")
	fs.StringVar(&cfg.AdvertiseAddr, "advertise-addr", "", `advertise address for client traffic (default "${addr}")`)
	fs.StringVar(&cfg.ConfigFile, "config", "", "path to config file")

	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error, fatal")
	fs.StringVar(&cfg.LogFile, "log-file", "", "log file path")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", `the format of the log, "text" or "json"`)

	fs.StringVar(&cfg.EtcdEndpointsRaw, "etcd-endpoints", defaultEtcdEndpoints, "comma-separated etcd endpoints used for leader election")
	fs.DurationVar(&cfg.EtcdDialTimeout, "etcd-dial-timeout", cfg.EtcdDialTimeout, "dial timeout for the etcd client")

	fs.DurationVar(&cfg.Timeouts.TaskManagerHeartbeatInterval, "tm-heartbeat-interval", cfg.Timeouts.TaskManagerHeartbeatInterval, "interval at which the resource manager pings registered task executors")
	fs.DurationVar(&cfg.Timeouts.TaskManagerHeartbeatTimeout, "tm-heartbeat-timeout", cfg.Timeouts.TaskManagerHeartbeatTimeout, "time without a heartbeat before a task executor is considered lost")
	fs.DurationVar(&cfg.Timeouts.JobManagerHeartbeatInterval, "jm-heartbeat-interval", cfg.Timeouts.JobManagerHeartbeatInterval, "interval at which the resource manager pings registered job managers")
	fs.DurationVar(&cfg.Timeouts.JobManagerHeartbeatTimeout, "jm-heartbeat-timeout", cfg.Timeouts.JobManagerHeartbeatTimeout, "time without a heartbeat before a job manager is considered lost")
	fs.DurationVar(&cfg.Timeouts.JobTimeout, "job-timeout", cfg.Timeouts.JobTimeout, "idle timeout for a job with no registered job manager")

	return cfg
}

// Config is the configuration for the resource manager server.
type Config struct {
	flagSet *flag.FlagSet

	Name          string `toml:"name" json:"name"`
	Addr          string `toml:"addr" json:"addr"`
	AdvertiseAddr string `toml:"advertise-addr" json:"advertise-addr"`
	ConfigFile    string `toml:"-" json:"-"`

	LogLevel  string `toml:"log-level" json:"log-level"`
	LogFile   string `toml:"log-file" json:"log-file"`
	LogFormat string `toml:"log-format" json:"log-format"`

	EtcdEndpointsRaw string        `toml:"etcd-endpoints" json:"etcd-endpoints"`
	EtcdDialTimeout  time.Duration `toml:"etcd-dial-timeout" json:"etcd-dial-timeout"`

	Timeouts TimeoutConfig `toml:"timeouts" json:"timeouts"`

	printVersion bool
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		log.Error("marshal config to json", zap.Reflect("config", c), zap.Error(err))
	}
	return string(cfg)
}

// Toml returns the TOML representation of the config, for operators who
// want to snapshot a running configuration to a file.
func (c *Config) Toml() (string, error) {
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		log.Error("marshal config to toml", zap.Error(err))
		return "", err
	}
	return b.String(), nil
}

// Parse parses the flag definitions from the argument list, loading a
// config file in between the two flag passes the same way the teacher does
// so that command-line flags always win over the file.
func (c *Config) Parse(arguments []string) error {
	if err := c.flagSet.Parse(arguments); err != nil {
		return rmerrors.ErrConfigParseFlagSet.Wrap(err).GenWithStackByArgs()
	}

	if c.ConfigFile != "" {
		if err := c.configFromFile(c.ConfigFile); err != nil {
			return err
		}
	}

	if err := c.flagSet.Parse(arguments); err != nil {
		return rmerrors.ErrConfigParseFlagSet.Wrap(err).GenWithStackByArgs()
	}

	if len(c.flagSet.Args()) != 0 {
		return rmerrors.ErrConfigInvalidFlag.GenWithStackByArgs(c.flagSet.Arg(0))
	}
	return c.adjust()
}

func (c *Config) adjust() error {
	if c.AdvertiseAddr == "" {
		c.AdvertiseAddr = c.Addr
	}
	c.Timeouts = c.Timeouts.Adjust()
	return nil
}

func (c *Config) configFromFile(path string) error {
	metaData, err := toml.DecodeFile(path, c)
	if err != nil {
		return rmerrors.ErrDecodeConfigFile.Wrap(err).GenWithStackByArgs()
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		items := make([]string, 0, len(undecoded))
		for _, item := range undecoded {
			items = append(items, item.String())
		}
		return rmerrors.ErrConfigUnknownItem.GenWithStackByArgs(strings.Join(items, ","))
	}
	return nil
}

// EtcdEndpoints splits the comma-separated endpoint list into a slice
// suitable for clientv3.Config.
func (c *Config) EtcdEndpoints() []string {
	if strings.TrimSpace(c.EtcdEndpointsRaw) == "" {
		return nil
	}
	parts := strings.Split(c.EtcdEndpointsRaw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
