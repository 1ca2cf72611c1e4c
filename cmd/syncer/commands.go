package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bizsync/internal/api"
	"bizsync/internal/domain"
	"bizsync/internal/scheduler"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func parseScope(raw string) (domain.Category, error) {
	if raw == "" || raw == string(domain.CategoryAll) {
		return domain.CategoryAll, nil
	}
	return domain.ParseCategory(raw)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run scheduled sync passes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.API.Enabled {
				srv := &http.Server{
					Addr:              a.cfg.API.Addr,
					Handler:           api.NewHandler(a.sync, a.logger).Routes(),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					a.logger.Info("api listening", "addr", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("api server failed", "error", err)
						cancel()
					}
				}()
				defer func() {
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			sched := scheduler.NewScheduler(a.sync, scheduler.Config{
				Schedule:   a.cfg.Sync.Schedule,
				Timeout:    a.cfg.Sync.Timeout,
				RunOnStart: a.cfg.Sync.RunOnStart,
			}, a.logger)

			a.logger.Info("starting syncer", "remote", a.cfg.Remote.BaseURL, "schedule", a.cfg.Sync.Schedule)

			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	var (
		category string
		full     bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(category)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if full {
				if err := a.sync.Reset(ctx, scope); err != nil {
					return err
				}
				printInfof("checkpoints reset, pulling everything")
			}

			a.sync.OnProgress(printResult)

			ctx, stop := context.WithTimeout(ctx, a.cfg.Sync.Timeout)
			defer stop()

			report, err := a.sync.PerformSync(ctx, scope)
			switch {
			case errors.Is(err, domain.ErrAuthRequired):
				return errors.New("not logged in, run `syncer login` first")
			case errors.Is(err, domain.ErrSessionExpired):
				return errors.New("session expired, run `syncer login` again")
			case err != nil && report == nil:
				return err
			}

			totals := report.Totals()
			if failed := report.Failed(); len(failed) > 0 {
				printWarnf("%d of %d categories failed", len(failed), len(report.Results))
				return errors.New("sync incomplete")
			}
			if err != nil {
				return err
			}

			printSuccessf("synced in %s: pushed %d, pulled %d", report.Duration().Round(time.Millisecond), totals.Pushed, totals.Pulled)
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "sync a single category (default all)")
	cmd.Flags().BoolVar(&full, "full", false, "reset checkpoints before syncing")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in owner and its checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.sync.Status(ctx)
			if errors.Is(err, domain.ErrAuthRequired) {
				return errors.New("not logged in")
			}
			if err != nil {
				return err
			}

			printStatus(status)
			return nil
		},
	}
}

func newLoginCmd() *cobra.Command {
	var ownerID, token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the session used to talk to the remote service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("BIZSYNC_TOKEN")
			}

			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.Login(ctx, ownerID, token); err != nil {
				return err
			}

			printSuccessf("logged in as %s", ownerID)
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "owner (account) id")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (defaults to $BIZSYNC_TOKEN)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and checkpoints, keeping local data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.Logout(ctx); err != nil {
				return err
			}

			printSuccessf("logged out")
			return nil
		},
	}
}
