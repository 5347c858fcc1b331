package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/high-horse/fingerprint-server/extract"
	"github.com/high-horse/fingerprint-server/logging"
	"github.com/high-horse/fingerprint-server/ratelimit"
	"github.com/high-horse/fingerprint-server/server"
	"github.com/high-horse/fingerprint-server/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP matching service",
	Long: `Start the fingerprint HTTP service. It exposes /match, /verify,
/verify-quality, /extract-features, /extract and /health.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr := mustGetString(cmd, "addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := logging.New(cfg.Log, nil)
	if err != nil {
		return err
	}

	svc := service.New(logger, validator.New(), cfg.ToPolicy(),
		service.WithCodec(cfg.Codec()),
		service.WithCreator(extract.NewCreator(cfg.ToExtractOptions())),
		service.WithTimeout(cfg.Matching.Timeout),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []server.Option
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go sweep(ctx, logger, limiter, cfg.RateLimit.IdleTTL)
		opts = append(opts, server.WithLimiter(limiter))
	}
	srv := server.New(cfg.Server, logger, svc, opts...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("shutdown")
		}
	}()

	if err := srv.Listen(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// sweep drops idle rate limit buckets until ctx is done.
func sweep(ctx context.Context, logger *logrus.Logger, limiter *ratelimit.Limiter, idle time.Duration) {
	ticker := time.NewTicker(max(idle/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(idle); n > 0 {
				logger.WithFields(logging.Fields{"dropped": n, "active": limiter.Len()}).Debug("rate limit sweep")
			}
		}
	}
}
