// Command clearpix-admin provides operational tooling: migrations, provider
// seeding, and health/usage inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearpix/clearpix-go/config"
	"github.com/clearpix/clearpix-go/internal/bootstrap"
	"github.com/clearpix/clearpix-go/internal/data"
	"github.com/clearpix/clearpix-go/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultCommandTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"seed-providers": {
			name:        "seed-providers",
			description: "Upsert the default provider configurations",
			run:         runSeedProviders,
		},
		"provider-health": {
			name:        "provider-health",
			description: "Print the current health state of all providers",
			run:         runProviderHealth,
		},
		"job-stats": {
			name:        "job-stats",
			description: "Print job counts per lifecycle state",
			run:         runJobStats,
		},
		"usage": {
			name:        "usage",
			description: "Print daily usage stats for one provider",
			run:         runUsage,
		},
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: clearpix-admin <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\t%s\n", name, cmds[name].description)
	}
	_ = w.Flush()
}

func connect(cc *commandContext) (*pgxpool.Pool, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cc.Ctx, defaultCommandTimeout)
	pool, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cc.Config.Postgres,
		Logger:   cc.Logger,
	})
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return pool, ctx, cancel, nil
}

func runMigrate(cc *commandContext, _ []string) error {
	pool, ctx, cancel, err := connect(cc)
	if err != nil {
		return err
	}
	defer cancel()
	defer pool.Close()

	return bootstrap.RunMigrations(ctx, pool, cc.Logger)
}

// defaultProviderConfigs are the seed rows for a fresh deployment. Counters
// start zeroed; operators tune limits per account tier afterwards.
func defaultProviderConfigs(now time.Time) []*model.ProviderConfig {
	return []*model.ProviderConfig{
		{
			ID:                model.ProviderRemoveBG,
			Enabled:           true,
			Priority:          1,
			CostPerImage:      0.20,
			RequestsPerMinute: 500,
			RequestsPerDay:    10000,
			LastDailyReset:    now,
			MaxMegapixels:     50,
			MaxFileSizeBytes:  12 * 1024 * 1024,
			InputFormats:      []string{"image/jpeg", "image/png", "image/webp"},
			OutputFormats:     []model.OutputFormat{model.OutputFormatPNG, model.OutputFormatJPEG, model.OutputFormatWebP},
			TimeoutSeconds:    60,
		},
		{
			ID:                model.ProviderPixian,
			Enabled:           true,
			Priority:          2,
			CostPerImage:      0.10,
			RequestsPerMinute: 200,
			RequestsPerDay:    5000,
			LastDailyReset:    now,
			MaxMegapixels:     32,
			MaxFileSizeBytes:  32 * 1024 * 1024,
			InputFormats:      []string{"image/jpeg", "image/png", "image/webp", "image/bmp"},
			OutputFormats:     []model.OutputFormat{model.OutputFormatPNG, model.OutputFormatJPEG, model.OutputFormatWebP},
			TimeoutSeconds:    60,
		},
	}
}

func runSeedProviders(cc *commandContext, _ []string) error {
	pool, ctx, cancel, err := connect(cc)
	if err != nil {
		return err
	}
	defer cancel()
	defer pool.Close()

	repo := data.NewProviderRepo(pool, nil)
	for _, cfg := range defaultProviderConfigs(time.Now().UTC()) {
		if err := repo.Upsert(ctx, cfg); err != nil {
			return err
		}
		cc.Logger.InfoContext(ctx, "provider seeded", "provider", cfg.ID, "priority", cfg.Priority)
	}
	return nil
}

func runProviderHealth(cc *commandContext, _ []string) error {
	pool, ctx, cancel, err := connect(cc)
	if err != nil {
		return err
	}
	defer cancel()
	defer pool.Close()

	repo := data.NewProviderRepo(pool, nil)
	configs, err := repo.GetEnabled(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tAVAILABLE\tBREAKER\tFAILURES\tUSED_TODAY\tDAILY_CAP\tAVG_MS\tSUCCESS_RATE")
	for _, cfg := range configs {
		breaker := "closed"
		if cfg.BreakerOpen {
			breaker = "open"
			if cfg.BreakerResetAt != nil {
				breaker = fmt.Sprintf("open until %s", cfg.BreakerResetAt.Format(time.RFC3339))
			}
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%d\t%d\t%.0f\t%.3f\n",
			cfg.ID, cfg.Available(now), breaker,
			cfg.ConsecutiveFailures, cfg.RequestsUsedToday, cfg.RequestsPerDay,
			cfg.AvgResponseMs, cfg.SuccessRate)
	}
	return w.Flush()
}

func runJobStats(cc *commandContext, _ []string) error {
	pool, ctx, cancel, err := connect(cc)
	if err != nil {
		return err
	}
	defer cancel()
	defer pool.Close()

	repo := data.NewJobRepo(pool, data.JobRepoConfig{Logger: cc.Logger})
	stats, err := repo.Stats(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
	fmt.Fprintf(w, "processing\t%d\n", stats.Processing)
	fmt.Fprintf(w, "retrying\t%d\n", stats.Retrying)
	fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
	fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
	fmt.Fprintf(w, "cancelled\t%d\n", stats.Cancelled)
	return w.Flush()
}

func runUsage(cc *commandContext, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ContinueOnError)
	provider := fs.String("provider", "", "provider id (removebg, pixian, clipdrop)")
	days := fs.Int("days", 7, "number of days to include")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *provider == "" {
		return fmt.Errorf("-provider is required")
	}

	pool, ctx, cancel, err := connect(cc)
	if err != nil {
		return err
	}
	defer cancel()
	defer pool.Close()

	repo := data.NewUsageRepo(pool, nil)
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -*days)
	stats, err := repo.DailyStats(ctx, model.ProviderID(*provider), from, to)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tREQUESTS\tSUCCESSES\tFAILURES\tAVG_MS\tCOST\tCREDITS")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f\t%.2f\t%.2f\n",
			s.Day.Format("2006-01-02"), s.Requests, s.Successes, s.Failures,
			s.AvgResponseMs(), s.Cost, s.CreditsUsed)
	}
	return w.Flush()
}
