package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/video-assignment-service/internal/api/dto"
	httptransport "github.com/spec-kit/video-assignment-service/internal/api/http"
	"github.com/spec-kit/video-assignment-service/internal/api/http/handlers"
	"github.com/spec-kit/video-assignment-service/internal/auth"
	"github.com/spec-kit/video-assignment-service/internal/config"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:           "video-assignment",
	Short:         "Video assignment service: admission control and auto-reclaim",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reclaim scheduler",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reclaim pass and print the report",
	RunE:  runSweep,
}

var expiredCmd = &cobra.Command{
	Use:   "expired",
	Short: "Print the expired assignments",
	RunE:  runExpired,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an operator",
	RunE:  runToken,
}

var (
	expiredLimit int
	tokenStaffID string
	tokenRole    string
)

func init() {
	expiredCmd.Flags().IntVar(&expiredLimit, "limit", 100, "Maximum number of videos to list")
	tokenCmd.Flags().StringVar(&tokenStaffID, "staff-id", "", "Staff id carried by the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.StaffRoleAdmin), "Role carried by the token")
	_ = tokenCmd.MarkFlagRequired("staff-id")
	rootCmd.AddCommand(serveCmd, sweepCmd, expiredCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("video-assignment: %v", err)
		os.Exit(1)
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	server := httptransport.NewApp(cfg.App.Name)
	httptransport.RegisterMiddlewares(server, logger, app.metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, app.readinessProbes()),
		Assignment:     handlers.NewAssignmentHandler(app.assignment, app.workload, nil),
		Limits:         handlers.NewStaffLimitHandler(app.limits, nil),
		Reclaim:        handlers.NewReclaimHandler(app.reclaim, app.worker, nil),
		Staff:          handlers.NewStaffHandler(app.staff),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, app.stores.Staff),
		Metrics:        app.metrics,
	})

	if cfg.Scheduler.Enabled {
		if err := app.worker.Start(); err != nil {
			return fmt.Errorf("start reclaim worker: %w", err)
		}
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- server.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
		}
	}

	drain := cfg.Scheduler.DrainTimeout
	// In-flight requests finish first so no admission is cut off mid-transaction.
	if err := server.ShutdownWithTimeout(drain); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := app.worker.Stop(stopCtx); err != nil {
		logger.Warn("reclaim worker stop", zap.Error(err))
	}
	app.drain(stopCtx)
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	report, err := app.worker.RunOnce(ctx)
	if err != nil {
		return err
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.DrainTimeout)
	defer cancel()
	app.drain(drainCtx)
	return printJSON(cmd.OutOrStdout(), report)
}

func runExpired(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	now := time.Now().UTC()
	timeout := app.reclaim.Timeout()
	count, err := app.reclaim.CountExpired(ctx, timeout, now)
	if err != nil {
		return err
	}
	videos, err := app.reclaim.ListExpired(ctx, timeout, now, expiredLimit)
	if err != nil {
		return err
	}
	resp := dto.ExpiredResponse{
		Count:          count,
		TimeoutSeconds: int64(timeout / time.Second),
		Videos:         make([]dto.VideoResponse, 0, len(videos)),
	}
	for _, v := range videos {
		resp.Videos = append(resp.Videos, dto.VideoResponse{
			ID:              v.ID,
			Title:           v.Title,
			State:           v.State,
			AssignedStaffID: v.AssignedStaffID,
			AssignedAt:      v.AssignedAt,
			UrgentFlag:      v.UrgentFlag,
			UpdatedAt:       v.UpdatedAt,
		})
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	role := domain.StaffRole(tokenRole)
	switch role {
	case domain.StaffRoleEditor, domain.StaffRoleSupervisor, domain.StaffRoleAdmin:
	default:
		return errors.New("role must be EDITOR, SUPERVISOR or ADMIN")
	}

	meta, token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes).GenerateToken(tokenStaffID, role)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), dto.AuthResponse{
		Token:     token,
		StaffID:   meta.SubjectID,
		Role:      role,
		ExpiresAt: meta.ExpiresAt,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
