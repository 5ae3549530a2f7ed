package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/storehaus/internal/cache"
	"github.com/roach88/storehaus/internal/config"
	"github.com/roach88/storehaus/internal/logging"
	"github.com/roach88/storehaus/internal/store"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Timeout time.Duration
}

// CheckResult reports the reachability of each configured backend.
type CheckResult struct {
	Database ComponentStatus  `json:"database"`
	Cache    *ComponentStatus `json:"cache,omitempty"`
}

// ComponentStatus is the outcome of one check.
type ComponentStatus struct {
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that the database and cache are reachable",
		Long: `Load the configuration, open the database and ping it, and ping the
Redis cache when caching is enabled. Exits 1 if any backend is down.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "overall timeout")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.Load()
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "loading configuration", err)
	}
	log, err := logging.New(cfg.Logging, formatter.GetErrWriter())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "configuring logging", err)
	}
	if !opts.Verbose && log.GetLevel() < zerolog.WarnLevel {
		log = log.Level(zerolog.WarnLevel)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	dbc, err := cfg.StoreConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "database configuration", err)
	}

	result := CheckResult{Database: ComponentStatus{Target: string(dbc.Dialect)}}
	db, err := store.Open(ctx, dbc, log)
	if err == nil {
		err = db.Ping(ctx)
		db.Close()
	}
	if err != nil {
		result.Database.Error = err.Error()
	} else {
		result.Database.OK = true
	}
	formatter.VerboseLog("database (%s): ok=%t", dbc.Dialect, result.Database.OK)

	if cfg.Cache.Enabled {
		status := &ComponentStatus{Target: "redis"}
		client, err := cache.NewRedisClient(cfg.RedisConfig())
		if err == nil {
			err = cache.NewManager(cache.Params{Client: client, Prefix: cfg.Cache.Prefix}).Ping(ctx)
			client.Close()
		}
		if err != nil {
			status.Error = err.Error()
		} else {
			status.OK = true
		}
		result.Cache = status
		formatter.VerboseLog("cache (redis): ok=%t", status.OK)
	}

	healthy := result.Database.OK && (result.Cache == nil || result.Cache.OK)

	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		writeStatus(formatter, "database", result.Database)
		if result.Cache != nil {
			writeStatus(formatter, "cache", *result.Cache)
		}
	}
	if !healthy {
		return NewExitError(ExitFailure, "check failed")
	}
	return nil
}

func writeStatus(f *OutputFormatter, name string, s ComponentStatus) {
	if s.OK {
		fmt.Fprintf(f.Writer, "✓ %s (%s)\n", name, s.Target)
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s (%s): %s\n", name, s.Target, s.Error)
}
