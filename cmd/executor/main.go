// Command executor is a minimal task executor: it registers itself with a
// resource manager, sends a slot report with no slots, and heartbeats
// until the process is signaled. It exists to exercise
// the wire protocol end to end without a real task-execution runtime
// behind it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newCmdExecutor()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCmdExecutor() *cobra.Command {
	o := &executorOptions{}

	cmd := &cobra.Command{
		Use:   "executor",
		Short: "Start a demo task executor that registers against a resource manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecutor(cmd.Context(), o)
		},
	}

	cmd.Flags().StringVar(&o.resourceManagerAddr, "rm-addr", "127.0.0.1:10241", "address of the resource manager to register with")
	cmd.Flags().StringVar(&o.listenAddr, "addr", "127.0.0.1:0", "address this task executor advertises to the resource manager")
	cmd.Flags().StringVar(&o.resourceID, "resource-id", "", "resource id to register under (defaults to a generated id)")
	cmd.Flags().DurationVar(&o.heartbeatInterval, "heartbeat-interval", 0, "heartbeat interval (defaults to 3s)")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error, fatal")

	return cmd
}

type executorOptions struct {
	resourceManagerAddr string
	listenAddr          string
	resourceID          string
	heartbeatInterval   time.Duration
	logLevel            string
}
