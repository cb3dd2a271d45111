package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/database"
	"github.com/sandeepkv93/carspot-identity-service/internal/di"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/tools/common"
	"github.com/sandeepkv93/carspot-identity-service/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Account store schema tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations and seed the bootstrap super-admin if configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate up", func(ctx context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				runner, err := di.InitializeMigrationRunner()
				if err != nil {
					return nil, err
				}
				defer closeDB(runner.DB())

				report, err := runner.Run(ctx)
				if err != nil {
					return nil, err
				}
				details := []string{"schema migration applied"}
				switch {
				case report == nil:
					details = append(details, "bootstrap super-admin: not configured")
				case report.Created:
					details = append(details, fmt.Sprintf("bootstrap super-admin: created %s (id=%d)", report.Email, report.AccountID))
				default:
					details = append(details, "bootstrap super-admin: skipped, "+report.Reason)
				}
				return details, nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connectivity and which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate status", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				sqlDB, err := db.DB()
				if err != nil {
					return nil, err
				}
				if err := sqlDB.PingContext(ctx); err != nil {
					return nil, fmt.Errorf("db ping: %w", err)
				}
				details := []string{"database reachable", "service: " + cfg.OTELServiceName}
				for _, model := range database.Models() {
					state := "missing"
					if db.Migrator().HasTable(model) {
						state = "present"
					}
					details = append(details, fmt.Sprintf("table %T: %s", model, state))
				}
				return details, nil
			})
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show migration plan (dry-run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "migrate plan", func(ctx context.Context) ([]string, error) {
				details := []string{"would apply AutoMigrate for:"}
				for _, model := range database.Models() {
					details = append(details, fmt.Sprintf("  %T", model))
				}
				return append(details,
					"unique index on accounts.email and accounts.super_admin_slot",
					"no mutation executed in plan mode",
				), nil
			})
		},
	}
}

func execute(opts *options, title string, fn func(context.Context) ([]string, error)) error {
	start := time.Now()
	details, err := run(opts, title, fn)
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordToolCommandRun(context.Background(), "migrate", title, status)
	observability.RecordToolCommandDuration(context.Background(), "migrate", title, status, time.Since(start))
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		os.Exit(3)
	}
	return nil
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
