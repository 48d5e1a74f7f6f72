// Package cli implements the factoryops command line: the API server,
// schema migration, token minting and a live record watcher.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/server"
	"github.com/noah-isme/factory-ops-api/internal/service"
	"github.com/noah-isme/factory-ops-api/pkg/config"
	"github.com/noah-isme/factory-ops-api/pkg/database"
	"github.com/noah-isme/factory-ops-api/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

type loader func() (*config.Config, error)

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	return buildRoot(config.Load)
}

func buildRoot(load loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "factoryops",
		Short:         "Factory operations API: jig, sample and production requests with quality inspections",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCommand(load))
	root.AddCommand(buildMigrateCommand(load))
	root.AddCommand(buildTokenCommand(load))
	root.AddCommand(buildWatchCommand(load))
	return root
}

func buildServeCommand(load loader) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := setup(load)
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck
			if port > 0 {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logr)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override PORT")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	app, err := server.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildMigrateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the document tables in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := setup(load)
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logr.Info("schema applied", zap.String("database", cfg.Database.Name))
			return nil
		},
	}
}

func buildTokenCommand(load loader) *cobra.Command {
	var req service.IssueTokenRequest
	var role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			auth := service.NewAuthService(nil, nil, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: cfg.JWT.Expiration,
				Issuer:            cfg.JWT.Issuer,
			})
			req.Role = models.UserRole(role)
			token, expiresAt, err := auth.IssueToken(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "operator user id")
	cmd.Flags().StringVar(&req.Name, "name", "", "operator display name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleWorker), "ADMIN, MANAGER or WORKER")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func buildWatchCommand(load loader) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Print a record every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := setup(load)
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, err := server.New(ctx, cfg, logr)
			if err != nil {
				return err
			}
			defer app.Close()
			return watch(ctx, app, models.RecordKind(kind), args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(models.KindJigRequest), "jig_request, sample_request, production_request or quality_inspection")
	return cmd
}

func watch(ctx context.Context, app *server.App, kind models.RecordKind, id string, out io.Writer) error {
	if kind.Collection() == "" {
		return fmt.Errorf("unknown record kind %q", kind)
	}
	view, found, err := app.Workspace.OpenDetail(ctx, kind, id)
	if err != nil {
		return err
	}
	defer view.Close()
	if !found {
		return fmt.Errorf("%s %s not found", kind.Label(), id)
	}

	enc := json.NewEncoder(out)
	if err := enc.Encode(view.Current()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-view.Updates():
			if !ok {
				return nil
			}
			if rec == nil {
				fmt.Fprintf(out, "%s %s was deleted\n", kind.Label(), id)
				return nil
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
}

func setup(load loader) (*config.Config, *zap.Logger, error) {
	cfg, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}
