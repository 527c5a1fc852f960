package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TritonDataCenter/toshstomp/internal/config"
	"github.com/TritonDataCenter/toshstomp/internal/replay"
	"github.com/TritonDataCenter/toshstomp/internal/target"
	"github.com/TritonDataCenter/toshstomp/internal/trace"
)

// runReplay is the whole run: resolve configuration, open and validate
// the target, start the worker pool, ingest the trace, dispatch it in
// real time and print the merged event log.
func runReplay(cmd *cobra.Command, path string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	if verbose {
		spew.Fdump(os.Stderr, cfg)
	}

	tgt, err := target.Open(path)
	if err != nil {
		return err
	}

	// start the workers before reading the replay log to give them
	// plenty of time to be parked and ready for work
	rep := replay.New(tgt, cfg.Workers, cfg.BlockSize)

	in, err := traceInput()
	if err != nil {
		return err
	}

	log, err := trace.Read(in, trace.Options{
		TargetSize: tgt.Size(),
		BlockSize:  int64(cfg.BlockSize),
		Clamp:      cfg.Clamp,
		TimeCap:    time.Duration(cfg.TimeCap),
	})
	if err != nil {
		return err
	}

	fmt.Printf("toshreplay: %d operations (%d reads, %d writes)\n",
		len(log.Ops), log.Reads, log.Writes)

	// one write buffer is shared by every worker; make sure the largest
	// ingested operation fits it before dispatch begins
	if err := tgt.EnsurePattern(log.MaxSize); err != nil {
		return err
	}

	if err := rep.Run(log.Ops); err != nil {
		return err
	}

	rep.Report(os.Stdout)
	return nil
}

// resolveConfig builds the run configuration: compiled-in defaults,
// then the TOML config file if given, then any explicitly set flags.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.New()

	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return nil, err
		}
	}

	fl := cmd.Flags()
	if fl.Changed("clamp") {
		cfg.Clamp = clampOps
	}
	if fl.Changed("workers") {
		cfg.Workers = poolSize
	}
	if fl.Changed("time-cap") {
		cfg.TimeCap = config.Duration(timeCap)
	}
	if fl.Changed("block-size") {
		cfg.BlockSize = blockSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// traceInput returns the stream carrying the replay trace. Replay input
// must be a file or a pipe; an interactive terminal is refused.
func traceInput() (io.Reader, error) {
	if traceFile != "" {
		f, err := os.Open(traceFile)
		if err != nil {
			return nil, errors.Wrapf(err, "open trace \"%s\"", traceFile)
		}
		return f, nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("replay log cannot be a terminal")
	}

	return os.Stdin, nil
}
