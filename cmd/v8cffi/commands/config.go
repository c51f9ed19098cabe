package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and profiles.

A profile selects the native library, the startup blobs, the worker count
and the store scripts are read from.

Configuration is stored in ~/.v8cffi/config.yaml`,
}

var setProfileFlags struct {
	library      string
	nativesPath  string
	snapshotPath string
	workers      int
	output       string
	maxOutput    int
	store        string
	root         string
	bucket       string
	prefix       string
	region       string
	endpoint     string
	accessKeyID  string
	secretKey    string
}

var configSetProfileCmd = &cobra.Command{
	Use:   "set-profile <name>",
	Short: "Add or replace a profile",
	Long: `Add or replace a profile.

Examples:
  v8cffi config set-profile dev --workers 4 --output json
  v8cffi config set-profile prod --library v8cffi --store s3 --bucket scripts \
    --natives blobs/natives.bin --snapshot blobs/snapshot.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := setProfileFlags
		p := &cli.Profile{
			Name:         args[0],
			Library:      f.library,
			NativesPath:  f.nativesPath,
			SnapshotPath: f.snapshotPath,
			Workers:      f.workers,
			Output:       f.output,
			MaxOutput:    f.maxOutput,
		}
		switch f.store {
		case "", cli.StoreLocal:
			if f.root != "" {
				p.Store = &cli.StoreConfig{Kind: cli.StoreLocal, Root: f.root}
			}
		case cli.StoreDB:
			p.Store = &cli.StoreConfig{Kind: cli.StoreDB, Root: f.root}
		case cli.StoreS3:
			p.Store = &cli.StoreConfig{Kind: cli.StoreS3, S3: &cli.S3Config{
				Bucket:          f.bucket,
				Prefix:          f.prefix,
				Region:          f.region,
				Endpoint:        f.endpoint,
				AccessKeyID:     f.accessKeyID,
				SecretAccessKey: f.secretKey,
			}}
		default:
			p.Store = &cli.StoreConfig{Kind: f.store}
		}
		if err := p.Validate(); err != nil {
			return err
		}

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.SetProfile(args[0], p); err != nil {
			return err
		}
		cli.PrintSuccess("Profile %q saved", args[0])
		return nil
	},
}

var configDeleteProfileCmd = &cobra.Command{
	Use:   "delete-profile <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.DeleteProfile(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Profile %q deleted", args[0])
		return nil
	},
}

var configUseProfileCmd = &cobra.Command{
	Use:   "use-profile <name>",
	Short: "Set the current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.UseProfile(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to profile %q", args[0])
		return nil
	},
}

var configListProfilesCmd = &cobra.Command{
	Use:     "list-profiles",
	Aliases: []string{"profiles"},
	Short:   "List all profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if len(cfg.Profiles) == 0 {
			fmt.Println("No profiles configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tLIBRARY\tSTORE\tWORKERS")
		for _, name := range cfg.ListProfiles() {
			p := cfg.Profiles[name]
			current := ""
			if name == cfg.CurrentProfile {
				current = "*"
			}
			library := p.Library
			if library == "" {
				library = "(default)"
			}
			workers := "auto"
			if p.Workers > 0 {
				workers = fmt.Sprint(p.Workers)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name, library, p.StoreKind(), workers)
		}
		return w.Flush()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current profile: %s\n", cfg.CurrentProfile)
		fmt.Printf("Profiles: %d\n", len(cfg.Profiles))

		for _, name := range cfg.ListProfiles() {
			p := cfg.Profiles[name]
			fmt.Printf("\n  %s:\n", name)
			if p.Library != "" {
				fmt.Printf("    Library: %s\n", p.Library)
			}
			if p.NativesPath != "" {
				fmt.Printf("    Natives: %s\n", p.NativesPath)
			}
			if p.SnapshotPath != "" {
				fmt.Printf("    Snapshot: %s\n", p.SnapshotPath)
			}
			if p.Workers > 0 {
				fmt.Printf("    Workers: %d\n", p.Workers)
			}
			if p.Output != "" {
				fmt.Printf("    Output: %s\n", p.Output)
			}
			fmt.Printf("    Store: %s\n", p.StoreKind())
			if p.Store != nil && p.Store.S3 != nil {
				s3 := p.Store.S3
				fmt.Printf("    Bucket: %s\n", s3.Bucket)
				if s3.Endpoint != "" {
					fmt.Printf("    Endpoint: %s\n", s3.Endpoint)
				}
				if s3.AccessKeyID != "" {
					fmt.Printf("    Access Key: %s\n", cli.MaskSecret(s3.AccessKeyID))
				}
			}
		}
		return nil
	},
}

func init() {
	fs := configSetProfileCmd.Flags()
	fs.StringVar(&setProfileFlags.library, "library", "", "native library (embedded, v8cffi)")
	fs.StringVar(&setProfileFlags.nativesPath, "natives", "", "natives blob path in the store")
	fs.StringVar(&setProfileFlags.snapshotPath, "snapshot", "", "snapshot blob path in the store")
	fs.IntVar(&setProfileFlags.workers, "workers", 0, "async worker count (0 = twice the CPU count)")
	fs.StringVar(&setProfileFlags.output, "output", "", "default output format")
	fs.IntVar(&setProfileFlags.maxOutput, "max-output", 0, "result size cap in bytes (embedded library)")
	fs.StringVar(&setProfileFlags.store, "store", "", "store kind: local, db, s3")
	fs.StringVar(&setProfileFlags.root, "root", "", "local store root or db directory")
	fs.StringVar(&setProfileFlags.bucket, "bucket", "", "S3 bucket")
	fs.StringVar(&setProfileFlags.prefix, "prefix", "", "S3 key prefix")
	fs.StringVar(&setProfileFlags.region, "region", "", "S3 region")
	fs.StringVar(&setProfileFlags.endpoint, "endpoint", "", "S3-compatible endpoint URL")
	fs.StringVar(&setProfileFlags.accessKeyID, "access-key-id", "", "S3 access key ID")
	fs.StringVar(&setProfileFlags.secretKey, "secret-access-key", "", "S3 secret access key")

	configCmd.AddCommand(configSetProfileCmd)
	configCmd.AddCommand(configDeleteProfileCmd)
	configCmd.AddCommand(configUseProfileCmd)
	configCmd.AddCommand(configListProfilesCmd)
	configCmd.AddCommand(configViewCmd)
	rootCmd.AddCommand(configCmd)
}
