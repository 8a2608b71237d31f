package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blobgw/internal/admin"
	"blobgw/internal/config"
	"blobgw/internal/core"
	"blobgw/internal/rpc"
	"blobgw/internal/storage"
	"blobgw/internal/telemetry"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func Run(ctx context.Context, settings config.Settings) (err error) {
	shutdownTelemetry, err := telemetry.Init(ctx, "blobgw", version, settings.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if flushErr := shutdownTelemetry(flushCtx); flushErr != nil {
			slog.Warn("Failed to flush traces", "error", flushErr)
		}
	}()

	engine, err := storage.Open(ctx, settings.Backend)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", settings.Backend.Kind, err)
	}
	defer func() {
		err = errors.Join(err, storage.Close(engine))
	}()

	server := rpc.NewServer(core.NewGateway(engine))

	lis, err := net.Listen("tcp", settings.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", settings.Listen, err)
	}

	var adminLis net.Listener
	if settings.AdminListen != "" {
		adminLis, err = net.Listen("tcp", settings.AdminListen)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to listen on %s: %w", settings.AdminListen, err), lis.Close())
		}
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		slog.Info("Starting blobgw gRPC server", "addr", lis.Addr().String(), "backend", settings.Backend.Kind)
		return rpc.Serve(ctx, server, lis, settings.ShutdownTimeout)
	})

	eg.Go(func() error {
		if adminLis == nil {
			slog.Debug("Skipping admin server because no address was provided")
			return nil
		}

		slog.Info("Starting blobgw admin server", "addr", adminLis.Addr().String())
		return admin.Serve(ctx, admin.NewServer(settings.AdminListen), adminLis, settings.ShutdownTimeout)
	})

	slog.Info("blobgw Started", "version", version)
	return eg.Wait()
}

func setupLogging(level log.Level) {
	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))
}

// bindFlags binds each settings key to the named flag, so a flag given on the
// command line overrides environment and config file values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("no flag named %q", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "blobgw",
		Short:         "Scoped blob storage over gRPC",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}

			level, _ := settings.Level()
			setupLogging(level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return Run(ctx, settings)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to a YAML config file")
	flags.String("listen", ":50051", "gRPC listen address")
	flags.String("admin-listen", ":9090", "admin HTTP listen address, empty to disable")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Duration("shutdown-timeout", 30*time.Second, "how long to wait for in-flight calls on shutdown")
	flags.String("otlp-endpoint", "", "OTLP/HTTP trace endpoint URL")
	flags.String("backend", storage.KindFS, "storage backend (memory, fs, sqlite, minio, bucket)")
	flags.String("data-dir", "./data", "directory for the fs and sqlite backends")
	flags.String("bucket-url", "", "gocloud.dev bucket URL for the bucket backend")
	flags.Int("chunk-size", storage.DefaultChunkSize, "chunk size in bytes for streamed reads")
	flags.String("redis-addr", "", "Redis address of the read-through cache, empty to disable")

	if err := bindFlags(v, flags, map[string]string{
		"listen":             "listen",
		"admin_listen":       "admin-listen",
		"log_level":          "log-level",
		"shutdown_timeout":   "shutdown-timeout",
		"otlp_endpoint":      "otlp-endpoint",
		"backend.kind":       "backend",
		"backend.data_dir":   "data-dir",
		"backend.bucket_url": "bucket-url",
		"backend.chunk_size": "chunk-size",
		"backend.redis.addr": "redis-addr",
	}); err != nil {
		panic(err)
	}

	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("blobgw exited with error", "error", err)
		os.Exit(1)
	}
}
