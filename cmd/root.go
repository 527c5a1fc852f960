// Package cmd wires the toshreplay command line. The core never parses
// flags or exits; everything operator-facing funnels through here.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TritonDataCenter/toshstomp/internal/console"
)

// program flags defined as package variables for access across functions
var (
	clampOps   bool          // correct out-of-bounds operations instead of aborting
	poolSize   int           // worker pool size
	timeCap    time.Duration // ingestion time cap
	blockSize  int           // device block size in bytes
	traceFile  string        // read the trace from a file instead of stdin
	configFile string        // TOML config file
	verbose    bool          // dump the resolved configuration
)

const progVersion = "1.0.0"

// replayStarted distinguishes usage errors (bad flags or arguments,
// rejected before the run begins) from replay failures for exit status
// purposes.
var replayStarted bool

// rootCmd is the whole CLI; replaying a trace is the only thing this
// tool does, so there are no subcommands.
var rootCmd = &cobra.Command{
	Use:   "toshreplay [flags] device_or_file",
	Short: "Replay a captured I/O trace against a device or file.",
	Long: `toshreplay reads a previously captured I/O trace on stdin (or from
--trace) and reissues every operation against the given device or file
at its originally recorded time offset, then prints a chronological log
of what actually happened.`,
	Version:       progVersion,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		replayStarted = true
		return runReplay(cmd, args[0])
	},
}

// Execute runs the CLI and maps failures onto the documented exit
// statuses: 0 for a completed replay, 2 for a usage error, 1 for any
// other fatal condition.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	console.Errorf("%v", err)

	if !replayStarted {
		fmt.Fprint(os.Stderr, rootCmd.UsageString())
		os.Exit(2)
	}
	os.Exit(1)
}

func init() {
	rootCmd.Flags().BoolVarP(&clampOps, "clamp", "c", false, "clamp out-of-bounds operations instead of aborting")
	rootCmd.Flags().IntVarP(&poolSize, "workers", "w", 128, "size of the worker pool")
	rootCmd.Flags().DurationVar(&timeCap, "time-cap", 120*time.Second, "stop ingesting once an operation is scheduled past this offset (0 disables)")
	rootCmd.Flags().IntVarP(&blockSize, "block-size", "b", 512, "device block size used to convert blkno fields to byte offsets")
	rootCmd.Flags().StringVarP(&traceFile, "trace", "f", "", "read the replay trace from this file instead of stdin")
	rootCmd.Flags().StringVar(&configFile, "config", "", "load defaults from this TOML config file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "dump the resolved configuration before replaying")
}
