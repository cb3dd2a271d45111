package seed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/carspot-identity-service/internal/config"
	"github.com/sandeepkv93/carspot-identity-service/internal/database"
	"github.com/sandeepkv93/carspot-identity-service/internal/domain"
	"github.com/sandeepkv93/carspot-identity-service/internal/observability"
	"github.com/sandeepkv93/carspot-identity-service/internal/tools/common"
	"github.com/sandeepkv93/carspot-identity-service/internal/tools/ui"
)

type options struct {
	envFile     string
	name        string
	email       string
	password    string
	dateOfBirth string
	ci          bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Bootstrap the CarSpot super-admin"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.name, "name", "", "override SUPER_ADMIN_NAME")
	cmd.PersistentFlags().StringVar(&opts.email, "email", "", "override SUPER_ADMIN_EMAIL")
	cmd.PersistentFlags().StringVar(&opts.password, "password", "", "override SUPER_ADMIN_PASSWORD")
	cmd.PersistentFlags().StringVar(&opts.dateOfBirth, "date-of-birth", "", "override SUPER_ADMIN_DATE_OF_BIRTH (YYYY-MM-DD)")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts))
	return cmd
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create the super-admin when the account store is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed apply", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				if err := database.Migrate(db); err != nil {
					return nil, err
				}
				report, err := database.SeedSuperAdmin(ctx, db, opts.seedFor(cfg))
				if err != nil {
					return nil, err
				}
				if report.Noop {
					return []string{"no changes: " + report.Reason}, nil
				}
				details := []string{fmt.Sprintf("created account %s (id=%d)", report.Email, report.AccountID)}
				if report.Reason != "" {
					details = append(details, report.Reason)
				}
				return details, nil
			})
		},
	}
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what seeding would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seed dry-run", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				seed := opts.seedFor(cfg)
				if !db.Migrator().HasTable(&domain.Account{}) {
					return []string{"accounts table missing; apply would migrate first", "would create super-admin: " + seed.Email}, nil
				}
				var count int64
				if err := db.WithContext(ctx).Model(&domain.Account{}).Count(&count).Error; err != nil {
					return nil, err
				}
				if count > 0 {
					return []string{fmt.Sprintf("store holds %d account(s); apply would be a no-op", count)}, nil
				}
				return []string{"store is empty", "would create super-admin: " + seed.Email}, nil
			})
		},
	}
}

func (o *options) seedFor(cfg *config.Config) database.SuperAdminSeed {
	seed := database.SuperAdminSeed{
		Name:        cfg.SuperAdminBootstrapName,
		Email:       cfg.SuperAdminBootstrapEmail,
		Password:    cfg.SuperAdminBootstrapSecret,
		DateOfBirth: cfg.SuperAdminBootstrapDOB,
	}
	if v := strings.TrimSpace(o.name); v != "" {
		seed.Name = v
	}
	if v := strings.TrimSpace(o.email); v != "" {
		seed.Email = v
	}
	if o.password != "" {
		seed.Password = o.password
	}
	if v := strings.TrimSpace(o.dateOfBirth); v != "" {
		seed.DateOfBirth = v
	}
	return seed
}

func execute(opts *options, title string, fn func(context.Context) ([]string, error)) error {
	start := time.Now()
	details, err := run(opts, title, fn)
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordToolCommandRun(context.Background(), "seed", title, status)
	observability.RecordToolCommandDuration(context.Background(), "seed", title, status, time.Since(start))
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
		return fn(context.Background())
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
