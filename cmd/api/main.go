package main

// @title           Donations Backend API
// @version         1.0
// @description     One-time and recurring donations through a hosted payment gateway.

// @host      localhost:8888
// @BasePath  /

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app"
	"github.com/fatflowers/donations/internal/app/service/sweeper"
	"github.com/fatflowers/donations/internal/platform/db"
	"github.com/fatflowers/donations/pkg/observability"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	serve := serveCmd()
	root := &cobra.Command{
		Use:           "donations",
		Short:         "Donation and recurring payment backend",
		Version:       observability.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, migrateCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{app.Module}
			if migrate {
				opts = append(opts, db.MigrateOnStart)
			}
			return run(fx.New(opts...))
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Run schema migration before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return once(app.CoreModule, fx.Invoke(db.AutoMigrate))
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale pending records once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return once(app.CoreModule, sweeper.Module, fx.Invoke(func(s *sweeper.Sweeper, log *zap.SugaredLogger) error {
				res, err := s.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				log.Infow("sweep finished", "expired_donations", res.ExpiredDonations, "cancelled_subscriptions", res.CancelledSubscriptions)
				return nil
			}))
		},
	}
}

// run starts a, blocks until SIGINT/SIGTERM and stops it.
func run(a *fx.App) error {
	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start app: %w", err)
	}

	<-a.Done()

	stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancel2()
	if err := a.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop app: %w", err)
	}
	return nil
}

// once builds an app whose work happens in its invokes, then starts and
// stops it so lifecycle hooks release what was opened.
func once(opts ...fx.Option) error {
	a := fx.New(append(opts, fx.NopLogger)...)
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}
	stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
	defer cancel2()
	return a.Stop(stopCtx)
}
