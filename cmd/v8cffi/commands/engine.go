package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/engine"
	"github.com/nitely/v8-cffi/pkg/engine/global"
	"github.com/nitely/v8-cffi/pkg/native"
	"github.com/nitely/v8-cffi/pkg/native/embedded"
	"github.com/nitely/v8-cffi/pkg/storage"
)

// errScriptFailed makes the process exit non-zero after a diagnostic has
// already been printed.
var errScriptFailed = errors.New("script failed")

// openLibrary opens the native library named by --library or the profile.
func openLibrary(p *cli.Profile) (native.Library, error) {
	name := libraryName
	if name == "" {
		name = p.Library
	}
	if (name == "" || name == embedded.Name) && p.MaxOutput > 0 {
		return embedded.New(embedded.WithMaxOutput(p.MaxOutput)), nil
	}
	return native.Open(name)
}

// openStore builds the profile's file store.
func openStore(p *cli.Profile) (storage.FileStore, error) {
	switch p.StoreKind() {
	case cli.StoreS3:
		c := p.Store.S3
		client := storage.NewS3Client(storage.S3Options{
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
		})
		return storage.NewS3(client, c.Bucket, c.Prefix), nil
	case cli.StoreDB:
		return storage.OpenDB(storage.DBOptions{Dir: p.Store.Root})
	default:
		if p.Store != nil && p.Store.Root != "" {
			return storage.NewLocal(p.Store.Root)
		}
		return storage.OS(), nil
	}
}

func engineOptions(p *cli.Profile, store storage.FileStore) []engine.Option {
	return []engine.Option{
		engine.WithNativesPath(p.NativesPath),
		engine.WithSnapshotPath(p.SnapshotPath),
		engine.WithStore(store),
		engine.WithLogger(slog.Default()),
		engine.WithMetrics(collector),
	}
}

// session is an environment with one live machine.
type session struct {
	profile *cli.Profile
	store   storage.FileStore
	env     *engine.Environment
	vm      *engine.Machine
}

func openSession(ctx context.Context) (*session, error) {
	p, err := getProfile()
	if err != nil {
		return nil, err
	}
	lib, err := openLibrary(p)
	if err != nil {
		return nil, err
	}
	store, err := openStore(p)
	if err != nil {
		return nil, err
	}

	env := engine.NewEnvironment(lib, engineOptions(p, store)...)
	if err := env.SetUp(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("set up environment: %w", err), closeStore(store))
	}
	vm := env.NewMachine()
	if err := vm.SetUp(); err != nil {
		return nil, errors.Join(err, env.TearDown(), closeStore(store))
	}
	return &session{profile: p, store: store, env: env, vm: vm}, nil
}

// Close tears the machine and environment down and closes the store.
func (s *session) Close() error {
	return errors.Join(s.vm.TearDown(), s.env.TearDown(), closeStore(s.store))
}

// closeStore closes stores that hold resources, such as the db store.
func closeStore(store storage.FileStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var (
	globalUp    bool
	globalStore storage.FileStore
)

// setUpGlobal sets up the process-wide scope from the selected profile.
func setUpGlobal(ctx context.Context) error {
	p, err := getProfile()
	if err != nil {
		return err
	}
	lib, err := openLibrary(p)
	if err != nil {
		return err
	}
	store, err := openStore(p)
	if err != nil {
		return err
	}
	if err := global.SetUp(ctx, lib, engineOptions(p, store)...); err != nil {
		return errors.Join(err, closeStore(store))
	}
	globalUp, globalStore = true, store
	return nil
}

func tearDownGlobal() error {
	store := globalStore
	globalStore = nil
	return errors.Join(global.TearDown(), closeStore(store))
}

// runResult runs one script and records the outcome.
func runResult(run func() (string, error), identifier string) (cli.RunResult, error) {
	start := time.Now()
	out, err := run()
	res := cli.RunResult{
		Identifier: identifier,
		Output:     out,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
		var e *engine.Error
		if errors.As(err, &e) {
			res.Kind = e.Kind.String()
		}
	}
	return res, err
}

// printRunError writes err to stderr, styling engine diagnostics.
func printRunError(err error) {
	var e *engine.Error
	if errors.As(err, &e) && e.Message != "" {
		styles := cli.NewStyles(cli.DefaultTheme)
		fmt.Fprintln(os.Stderr, styles.RenderDiagnostic(e.Kind.String(), e.Message))
		return
	}
	cli.PrintError("%v", err)
}

// filterOutput applies --jq to a run's output.
func filterOutput(res *cli.RunResult, expr string) error {
	if expr == "" || res.Failed() {
		return nil
	}
	values, err := cli.FilterJQ(res.Output, expr)
	if err != nil {
		return err
	}
	out, err := cli.FormatJQ(values)
	if err != nil {
		return err
	}
	res.Output = out
	return nil
}

// outputFormat picks the --output flag value or the profile default.
func outputFormat(flag string, p *cli.Profile) (cli.OutputFormat, error) {
	if flag == "" && p != nil {
		flag = p.Output
	}
	return cli.ParseFormat(flag)
}

// writeResults prints results to stdout or file.
func writeResults(cmd *cobra.Command, results any, format cli.OutputFormat, file string) error {
	opts := cli.OutputOptions{Format: format, File: file}
	if file == "" {
		opts.Writer = cmd.OutOrStdout()
	}
	return cli.Output(results, opts)
}
