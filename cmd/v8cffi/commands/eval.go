package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/engine/global"
)

var evalCmd = &cobra.Command{
	Use:   "eval <source...>",
	Short: "Evaluate source through the process-wide scope",
	Long: `Evaluate source in the process-wide scope and print the result.

Arguments are joined with spaces. The scope is set up on first use and torn
down when the command exits.

Example:
  v8cffi eval '[1, 2, 3].map(x => x * 2).join(",")'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setUpGlobal(cmd.Context()); err != nil {
			return err
		}
		out, err := global.Run(strings.Join(args, " "), "")
		if err != nil {
			printRunError(err)
			return errScriptFailed
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
}
