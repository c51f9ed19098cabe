package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/engine"
	"github.com/nitely/v8-cffi/pkg/storage"
)

var (
	runEval       string
	runIdentifier string
	runLoad       []string
	runJQ         string
	runOutput     string
	runOutFile    string
)

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Run script files or inline source",
	Long: `Run script files in one scope, in order, printing each completion value.

Files are read from the profile's store. Sources given with --load run first
and share the same scope, so their globals are visible to the scripts.
The first failing script stops the run.

Examples:
  v8cffi run a.js b.js
  v8cffi run -e 'Math.max(10, 20)'
  v8cffi run --load lib.js -e 'JSON.stringify(stats())' --jq '.total'
  v8cffi run main.js -o json --out result.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runEval == "" && len(args) == 0 {
			return errors.New("no script: pass files or use -e")
		}
		ctx := cmd.Context()

		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		format, err := outputFormat(runOutput, sess.profile)
		if err != nil {
			return err
		}

		scope := sess.vm.NewScope()
		if err := scope.SetUp(); err != nil {
			return err
		}
		defer scope.TearDown()

		if err := scope.LoadSources(ctx, runLoad); err != nil {
			printRunError(err)
			return errScriptFailed
		}

		var (
			results []cli.RunResult
			failed  error
		)
		for _, path := range args {
			src, err := storage.ReadFile(ctx, sess.store, path)
			if err != nil {
				return err
			}
			res, err := runResult(func() (string, error) { return scope.RunBytes(src, path) }, path)
			results = append(results, res)
			if err != nil {
				failed = err
				break
			}
		}
		if failed == nil && runEval != "" {
			id := runIdentifier
			if id == "" {
				id = engine.DefaultIdentifier
			}
			res, err := runResult(func() (string, error) { return scope.Run(runEval, id) }, id)
			results = append(results, res)
			failed = err
		}

		for i := range results {
			if err := filterOutput(&results[i], runJQ); err != nil {
				return err
			}
		}
		if err := writeResults(cmd, results, format, runOutFile); err != nil {
			return err
		}
		if failed != nil {
			printRunError(failed)
			return errScriptFailed
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runEval, "eval", "e", "", "inline source to run after the files")
	runCmd.Flags().StringVar(&runIdentifier, "id", "", "identifier for inline source")
	runCmd.Flags().StringSliceVar(&runLoad, "load", nil, "sources to load before running")
	runCmd.Flags().StringVar(&runJQ, "jq", "", "jq expression applied to each result")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output format: raw, json, yaml, msgpack")
	runCmd.Flags().StringVar(&runOutFile, "out", "", "write results to a file")
	rootCmd.AddCommand(runCmd)
}
