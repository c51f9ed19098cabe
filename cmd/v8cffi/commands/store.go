package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/storage"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Stage sources and blobs in the profile's store",
	Long: `Read and write files in the store selected by the profile.

The store is where run, batch and bench read script files and where the
environment reads its natives and snapshot blobs.

Examples:
  v8cffi -p prod store put ./build/snapshot.bin blobs/snapshot.bin
  v8cffi -p prod store get scripts/main.js
  v8cffi -p prod store exists blobs/natives.bin`,
}

func profileStore() (storage.FileStore, error) {
	p, err := getProfile()
	if err != nil {
		return nil, err
	}
	return openStore(p)
}

var storePutCmd = &cobra.Command{
	Use:   "put <local-file> <path>",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := profileStore()
		if err != nil {
			return err
		}
		defer closeStore(store)
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if err := storage.WriteFile(cmd.Context(), store, args[1], data); err != nil {
			return err
		}
		cli.PrintSuccess("Stored %s (%s)", args[1], cli.FormatBytes(int64(len(data))))
		return nil
	},
}

var storeGetOut string

var storeGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print or download a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := profileStore()
		if err != nil {
			return err
		}
		defer closeStore(store)
		data, err := storage.ReadFile(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		if storeGetOut != "" {
			return os.WriteFile(storeGetOut, data, 0o644)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var storeRmCmd = &cobra.Command{
	Use:     "rm <path>",
	Aliases: []string{"delete"},
	Short:   "Delete a file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := profileStore()
		if err != nil {
			return err
		}
		defer closeStore(store)
		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Deleted %s", args[0])
		return nil
	},
}

var storeExistsCmd = &cobra.Command{
	Use:   "exists <path>",
	Short: "Report whether a file exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := profileStore()
		if err != nil {
			return err
		}
		defer closeStore(store)
		ok, err := store.Exists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		if !ok {
			return fmt.Errorf("%s: %w", args[0], os.ErrNotExist)
		}
		return nil
	},
}

func init() {
	storeGetCmd.Flags().StringVar(&storeGetOut, "out", "", "write to a local file instead of stdout")

	storeCmd.AddCommand(storePutCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storeRmCmd)
	storeCmd.AddCommand(storeExistsCmd)
	rootCmd.AddCommand(storeCmd)
}
