package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/cmd/v8cffi/internal/build"
	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/native"
)

var versionFormat string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFormat != "" {
			format, err := cli.ParseFormat(versionFormat)
			if err != nil {
				return err
			}
			return writeResults(cmd, build.Get(), format, "")
		}
		fmt.Fprintln(cmd.OutOrStdout(), build.String())
		if isVerbose() {
			fmt.Fprintf(cmd.OutOrStdout(), "  libraries: %v\n", native.Libraries())
			if cfg, err := getConfig(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  config:    %s\n", cfg.Path())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "  config:    (unavailable: %v)\n", err)
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "", "structured output: json, yaml")
	rootCmd.AddCommand(versionCmd)
}
