// Command master runs the resource manager control plane: it campaigns
// for leadership over etcd and, once elected, serves the registration,
// heartbeat, slot-request and introspection RPCs described by the core
// resourcemanager package.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ElliotVilhelm/flink/pkg/config"
)

func main() {
	cmd := newCmdMaster()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCmdMaster builds the root command, mirroring the teacher's
// options/addFlags/complete/run split for CLI subcommands.
func newCmdMaster() *cobra.Command {
	o := newMasterOptions()

	cmd := &cobra.Command{
		Use:   "master",
		Short: "Start a resource manager node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			return o.run(cmd.Context())
		},
	}
	o.addFlags(cmd)
	return cmd
}

type masterOptions struct {
	flagArgs []string
}

func newMasterOptions() *masterOptions {
	return &masterOptions{}
}

func (o *masterOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "human-readable id for this resource manager node")
	cmd.Flags().String("addr", "", "listen address for the resource manager RPC server")
	cmd.Flags().String("advertise-addr", "", "advertise address for client traffic")
	cmd.Flags().String("config", "", "path of the configuration file")
	cmd.Flags().String("etcd-endpoints", "", "comma-separated etcd endpoints used for leader election")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error, fatal")
	cmd.Flags().String("log-file", "", "log file path")
}

// complete translates cobra's parsed pflag.FlagSet into the argument list
// pkg/config.Config.Parse expects, so the same flag.FlagSet-based parser
// backs both the config file and the command line.
func (o *masterOptions) complete(cmd *cobra.Command) error {
	var args []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		args = append(args, "-"+f.Name, f.Value.String())
	})
	o.flagArgs = args
	return nil
}

func (o *masterOptions) run(ctx context.Context) error {
	cfg := config.NewConfig()
	if err := cfg.Parse(o.flagArgs); err != nil {
		return err
	}
	return runMaster(ctx, cfg)
}
