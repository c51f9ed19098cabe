package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/engine"
	"github.com/nitely/v8-cffi/pkg/engine/async"
	"github.com/nitely/v8-cffi/pkg/storage"
)

const defaultBenchSource = "Math.max(10, 20);"

var (
	benchCount   int
	benchEval    string
	benchAsync   bool
	benchWorkers int
	benchOutput  string
)

// BenchResult is the structured bench report.
type BenchResult struct {
	Mode       string  `json:"mode" yaml:"mode"`
	Runs       int     `json:"runs" yaml:"runs"`
	Failed     int     `json:"failed" yaml:"failed"`
	Workers    int     `json:"workers,omitempty" yaml:"workers,omitempty"`
	ElapsedMS  int64   `json:"elapsed_ms" yaml:"elapsed_ms"`
	RunsPerSec float64 `json:"runs_per_sec" yaml:"runs_per_sec"`
}

var benchCmd = &cobra.Command{
	Use:   "bench [file]",
	Short: "Measure script throughput",
	Long: `Run one script repeatedly and report throughput.

Without a file or -e, a small arithmetic expression is used. With --async
all runs are queued at once on an async scope.

Examples:
  v8cffi bench -n 10000
  v8cffi bench fib.js -n 100 --async --workers 4 -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchCount < 1 {
			return errors.New("-n must be positive")
		}
		ctx := cmd.Context()

		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		src, id := benchEval, engine.DefaultIdentifier
		if len(args) == 1 {
			data, err := storage.ReadFile(ctx, sess.store, args[0])
			if err != nil {
				return err
			}
			src, id = string(data), args[0]
		}
		if src == "" {
			src = defaultBenchSource
		}

		var res BenchResult
		if benchAsync {
			res, err = benchConcurrent(cmd, sess, src, id)
		} else {
			res, err = benchSerial(sess, src, id)
		}
		if err != nil {
			return err
		}

		if benchOutput != "" {
			format, err := cli.ParseFormat(benchOutput)
			if err != nil {
				return err
			}
			return writeResults(cmd, res, format, "")
		}
		styles := cli.NewStyles(cli.DefaultTheme)
		elapsed := time.Duration(res.ElapsedMS) * time.Millisecond
		rows := []cli.Row{
			{Label: "mode", Value: res.Mode},
			{Label: "runs", Value: fmt.Sprint(res.Runs)},
			{Label: "failed", Value: fmt.Sprint(res.Failed)},
			{Label: "elapsed", Value: cli.FormatDuration(elapsed)},
			{Label: "rate", Value: cli.FormatRate(res.Runs, elapsed)},
		}
		if res.Workers > 0 {
			rows = append(rows, cli.Row{Label: "workers", Value: fmt.Sprint(res.Workers)})
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles.RenderSummary("bench", rows, 0))
		return nil
	},
}

func benchSerial(sess *session, src, id string) (BenchResult, error) {
	scope := sess.vm.NewScope()
	if err := scope.SetUp(); err != nil {
		return BenchResult{}, err
	}
	defer scope.TearDown()

	// Fail fast on a broken script instead of timing n failures.
	if _, err := scope.Run(src, id); err != nil {
		printRunError(err)
		return BenchResult{}, errScriptFailed
	}

	res := BenchResult{Mode: "sync", Runs: benchCount}
	start := time.Now()
	for i := 0; i < benchCount; i++ {
		if _, err := scope.Run(src, id); err != nil {
			res.Failed++
		}
	}
	return finish(res, time.Since(start)), nil
}

func benchConcurrent(cmd *cobra.Command, sess *session, src, id string) (BenchResult, error) {
	workers := benchWorkers
	if workers == 0 {
		workers = sess.profile.Workers
	}
	am := async.NewMachine(sess.vm, async.WithWorkers(workers))
	defer am.Close()

	scope := am.NewScope()
	if err := scope.SetUp(); err != nil {
		return BenchResult{}, err
	}

	if _, err := scope.Run(src, id).Await(cmd.Context()); err != nil {
		printRunError(err)
		return BenchResult{}, errors.Join(errScriptFailed, scope.TearDown())
	}

	res := BenchResult{Mode: "async", Runs: benchCount, Workers: am.Workers()}
	start := time.Now()
	futures := make([]*async.Future, benchCount)
	for i := range futures {
		futures[i] = scope.Run(src, id)
	}
	for _, f := range futures {
		if _, err := f.Await(cmd.Context()); err != nil {
			res.Failed++
		}
	}
	elapsed := time.Since(start)
	if err := scope.TearDown(); err != nil {
		return BenchResult{}, err
	}
	return finish(res, elapsed), nil
}

func finish(res BenchResult, elapsed time.Duration) BenchResult {
	res.ElapsedMS = elapsed.Milliseconds()
	if elapsed > 0 {
		res.RunsPerSec = float64(res.Runs) / elapsed.Seconds()
	}
	return res
}

func init() {
	benchCmd.Flags().IntVarP(&benchCount, "count", "n", 1000, "number of runs")
	benchCmd.Flags().StringVarP(&benchEval, "eval", "e", "", "inline source to benchmark")
	benchCmd.Flags().BoolVar(&benchAsync, "async", false, "queue all runs on an async scope")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 0, "concurrent runs with --async")
	benchCmd.Flags().StringVarP(&benchOutput, "output", "o", "", "structured output: json, yaml")
	rootCmd.AddCommand(benchCmd)
}
