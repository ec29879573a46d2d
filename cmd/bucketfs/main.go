package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/s3fs-fuse/bucketfs/internal/config"
	"github.com/s3fs-fuse/bucketfs/internal/credentials"
	"github.com/s3fs-fuse/bucketfs/internal/metrics"
	"github.com/s3fs-fuse/bucketfs/internal/objectstore"
	"github.com/s3fs-fuse/bucketfs/internal/storage"
	"github.com/s3fs-fuse/bucketfs/internal/vfs"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newConnector is replaced in tests.
var newConnector = storage.NewConnector

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bucketfs",
		Short: "bucketfs - a directory tree over object storage",
		Long: `bucketfs presents the containers of an object store as folders and
files. It can mount a container with FUSE, serve a file browser API over
HTTP, or run single operations from the command line.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (json, text)")
	flags.String("backend", "s3", "Storage backend (s3, minio, postgres, mongodb, memory)")
	flags.String("region", "us-east-1", "S3 region")
	flags.String("endpoint", "", "S3 endpoint URL (for LocalStack or other S3-compatible services)")
	flags.String("minio-endpoint", "", "MinIO endpoint (host:port)")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("mongodb-uri", "", "MongoDB connection URI")
	flags.StringSlice("memory-container", nil, "Container to create in the memory backend")
	flags.String("credentials", "env", "Credential source (env, file, endpoint)")
	flags.String("credentials-url", "", "URL of the credential endpoint")
	flags.Duration("credentials-ttl", 0, "Cache credentials for this long (0 disables caching)")
	flags.String("passwd-file", "", "Path to an ACCESS_KEY:SECRET_KEY passwd file")
	flags.Bool("directory-times", false, "Report the newest child's modification time on directories")

	rootCmd.AddCommand(
		newServeCommand(),
		newMountCommand(),
		newBucketsCommand(),
		newListCommand(),
		newStatCommand(),
		newCatCommand(),
		newPutCommand(),
		newMkdirCommand(),
		newRemoveCommand(),
		newMoveCommand(),
	)
	return rootCmd
}

// app holds what every command needs.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	provider credentials.Provider
	metrics  metrics.Manager
	fs       *vfs.Adapter
	close    func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := setupLogging(cfg.LogLevel, cfg.LogFormat)
	log.SetOutput(cmd.ErrOrStderr())

	connect, closeFn, err := newConnector(cmd.Context(), cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Type, err)
	}

	mgr := metrics.NewManager(metrics.Config{
		Enable:    cfg.Metrics.Enable,
		Namespace: cfg.Metrics.Namespace,
	})
	provider := cfg.Provider(log)
	client := objectstore.NewClient(connect, log)

	return &app{
		cfg:      cfg,
		log:      log,
		provider: provider,
		metrics:  mgr,
		fs: vfs.New(provider, client,
			vfs.WithLogger(log),
			vfs.WithRecorder(mgr),
			vfs.WithDirectoryTimes(cfg.Listing.DirectoryTimes),
		),
		close: closeFn,
	}, nil
}

func (a *app) Close() {
	if err := a.close(); err != nil {
		a.log.WithError(err).Warn("Failed to close backend")
	}
}

// runApp loads the app and runs fn with it. The context is cancelled on
// SIGINT or SIGTERM.
func runApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	cmd.SetContext(ctx)

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			a.log.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return fn(ctx, a)
}

func setupLogging(level, format string) *logrus.Logger {
	log := logrus.New()

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
