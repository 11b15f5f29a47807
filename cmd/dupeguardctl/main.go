package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentworkforce/dupeguard/internal/dupes"
	"github.com/agentworkforce/dupeguard/internal/settings"
	"github.com/agentworkforce/dupeguard/internal/shopify"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	mock       bool
	verbose    bool
	now        func() time.Time
}

// runtime is what every subcommand works against. orders is set only in mock
// mode, where the sample dataset lives in memory for one invocation.
type runtime struct {
	cfg      *ctlConfig
	scanner  *dupes.Scanner
	settings *settings.Store
	orders   *shopify.MemoryStore
	mode     string
}

func (r *runtime) Close() error {
	return r.settings.Close()
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{now: func() time.Time { return time.Now().UTC() }}
	root := &cobra.Command{
		Use:           "dupeguardctl",
		Short:         "Find and remediate duplicate Shopify orders",
		Long:          `Operate the duplicate order detector from the command line: run scans, reopen canceled duplicates and manage settings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().BoolVar(&opts.mock, "mock", false, "use the built-in sample orders instead of Shopify")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	root.AddCommand(
		newScanCmd(opts),
		newReopenCmd(opts),
		newCanceledCmd(opts),
		newSettingsCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func (o *rootOptions) open(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	rt := &runtime{cfg: cfg}
	var directory dupes.OrderDirectory
	var mutator dupes.OrderMutator
	if o.mock || cfg.Mock || cfg.Shop == "" || cfg.AccessToken == "" {
		rt.orders = shopify.NewMemoryStore(o.now, shopify.SampleOrders(o.now())...)
		directory, mutator, rt.mode = rt.orders, rt.orders, "mock"
	} else {
		client, err := shopify.NewClient(shopify.ClientOptions{
			Shop:        cfg.Shop,
			AccessToken: cfg.AccessToken,
			APIVersion:  cfg.APIVersion,
			UserAgent:   "dupeguardctl",
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		directory, mutator, rt.mode = client, client, "shopify"
	}

	backend, err := settings.BuildBackendFromDSN(cfg.SettingsDSN)
	if err != nil {
		return nil, err
	}
	defaults := cfg.Defaults.toSettings()
	rt.settings, err = settings.Open(ctx, backend, settings.StoreOptions{Logger: logger, Defaults: &defaults})
	if err != nil {
		return nil, err
	}
	rt.scanner = dupes.NewScanner(dupes.ScannerOptions{
		Directory: directory,
		Mutator:   mutator,
		Logger:    logger,
		Now:       o.now,
	})
	return rt, nil
}
