package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/engine/async"
	"github.com/nitely/v8-cffi/pkg/storage"
)

var (
	batchWorkers int
	batchJQ      string
	batchOutput  string
	batchOutFile string
	batchSchema  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run a batch file concurrently",
	Long: `Run every script of a batch file on one async scope.

The batch's sources are loaded first, in order. Scripts are then queued
together and run on a bounded worker pool; results are printed in batch
order. Failures do not stop other scripts. Use "-" to read the batch from
stdin.

Batch file:
  sources:
    - lib/prelude.js
  scripts:
    - identifier: sum
      source: "sum([1, 2, 3])"
    - file: jobs/report.js

Use --schema to print the batch file's JSON Schema.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchSchema {
			s, err := cli.BatchSchema()
			if err != nil {
				return err
			}
			return writeResults(cmd, s, cli.FormatJSON, "")
		}
		if len(args) != 1 {
			return errors.New("batch file is required")
		}
		ctx := cmd.Context()

		b, err := cli.LoadBatch(args[0])
		if err != nil {
			return err
		}

		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		format, err := outputFormat(batchOutput, sess.profile)
		if err != nil {
			return err
		}

		sources := make([]string, len(b.Scripts))
		for i, s := range b.Scripts {
			if s.File == "" {
				sources[i] = s.Source
				continue
			}
			data, err := storage.ReadFile(ctx, sess.store, s.File)
			if err != nil {
				return fmt.Errorf("script %s: %w", s.Name(), err)
			}
			sources[i] = string(data)
		}

		workers := batchWorkers
		if workers == 0 {
			workers = sess.profile.Workers
		}
		am := async.NewMachine(sess.vm, async.WithWorkers(workers))
		defer am.Close()

		scope := am.NewScope()
		if err := scope.SetUp(); err != nil {
			return err
		}
		if err := scope.Scope().LoadSources(ctx, b.Sources); err != nil {
			printRunError(err)
			return errors.Join(errScriptFailed, scope.TearDown())
		}

		start := time.Now()
		futures := make([]*async.Future, len(b.Scripts))
		for i, s := range b.Scripts {
			futures[i] = scope.Run(sources[i], s.Name())
		}

		results := make([]cli.RunResult, len(futures))
		var failed int
		for i, f := range futures {
			out, err := f.Await(ctx)
			results[i] = cli.RunResult{Identifier: b.Scripts[i].Name(), Output: out}
			if err != nil {
				results[i].Error = err.Error()
				printRunError(err)
				failed++
				continue
			}
			if err := filterOutput(&results[i], batchJQ); err != nil {
				return errors.Join(err, scope.TearDown())
			}
		}
		elapsed := time.Since(start)

		if err := scope.TearDown(); err != nil {
			return err
		}
		if err := writeResults(cmd, results, format, batchOutFile); err != nil {
			return err
		}
		if isVerbose() {
			styles := cli.NewStyles(cli.DefaultTheme)
			fmt.Fprintln(cmd.ErrOrStderr(), styles.RenderSummary("batch", []cli.Row{
				{Label: "scripts", Value: fmt.Sprint(len(results))},
				{Label: "failed", Value: fmt.Sprint(failed)},
				{Label: "workers", Value: fmt.Sprint(am.Workers())},
				{Label: "elapsed", Value: cli.FormatDuration(elapsed)},
			}, 0))
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d scripts", errScriptFailed, failed, len(results))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent runs (default: profile, then twice the CPU count)")
	batchCmd.Flags().StringVar(&batchJQ, "jq", "", "jq expression applied to each result")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output format: raw, json, yaml, msgpack")
	batchCmd.Flags().StringVar(&batchOutFile, "out", "", "write results to a file")
	batchCmd.Flags().BoolVar(&batchSchema, "schema", false, "print the batch file JSON Schema and exit")
	rootCmd.AddCommand(batchCmd)
}
