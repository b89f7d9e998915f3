package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/tablesync/internal/blob"
	"github.com/openmined/tablesync/internal/config"
	"github.com/openmined/tablesync/internal/delta"
	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/utils"
	"github.com/openmined/tablesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	logTimeFormat  = "2006-01-02T15:04:05.000Z07:00"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tablesync",
		Short:         "Read Delta tables and their changes for incremental sync",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}

	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "tablesync config file")
	cmd.PersistentFlags().StringP("table", "t", "", "table location (s3://bucket/prefix, file:// or a path)")
	cmd.PersistentFlags().String("name", "", "table name override")
	cmd.PersistentFlags().String("journal", "", "sync journal path")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", "", "also write logs to this file")

	cmd.AddCommand(
		newSnapshotCmd(),
		newTableCmd(),
		newBacklogCmd(),
		newChangesCmd(),
		newSafeCmd(),
		newSyncCmd(),
		newWatchCmd(),
		newRunsCmd(),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	slog.SetDefault(slog.New(newStderrHandler(slog.LevelInfo)))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}

func newStderrHandler(level slog.Level) slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: logTimeFormat,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
}

// loadConfig merges the config file, TABLESYNC_* environment variables and
// flags into a validated config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	// config path
	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(filepath.Join(home, ".tablesync"))
		v.AddConfigPath(filepath.Join(home, ".config", "tablesync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	for key, flag := range map[string]string{
		"table_uri":    "table",
		"table_name":   "name",
		"journal_path": "journal",
		"log_level":    "log-level",
		"log_file":     "log-file",
	} {
		if f := cmd.Flag(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	// Set up environment variables
	v.SetEnvPrefix("TABLESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &config.Config{
		Path:               v.ConfigFileUsed(),
		TableURI:           v.GetString("table_uri"),
		TableName:          v.GetString("table_name"),
		JournalPath:        v.GetString("journal_path"),
		LogFile:            v.GetString("log_file"),
		LogLevel:           v.GetString("log_level"),
		ActionCacheSize:    v.GetInt("action_cache_size"),
		FetchConcurrency:   v.GetInt("fetch_concurrency"),
		InCommitTimestamps: v.GetBool("in_commit_timestamps"),
		S3: config.S3Config{
			Region:        v.GetString("s3.region"),
			Endpoint:      v.GetString("s3.endpoint"),
			AccessKey:     v.GetString("s3.access_key"),
			SecretKey:     v.GetString("s3.secret_key"),
			UseAccelerate: v.GetBool("s3.use_accelerate"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the stderr handler at the configured level and, when
// a log file is set, a plain text copy of every record in that file.
func setupLogging(cfg *config.Config) (io.Closer, error) {
	stderrHandler := newStderrHandler(cfg.Level())
	if cfg.LogFile == "" {
		slog.SetDefault(slog.New(stderrHandler))
		return closerFunc(func() error { return nil }), nil
	}

	if err := utils.EnsureParent(cfg.LogFile); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: cfg.Level(),
		// the interceptor stamps each line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stderrHandler, fileHandler)))

	return closerFunc(func() error {
		return errors.Join(logInterceptor.Close(), file.Close())
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// session is what every table command works with: the validated config and
// a conversion source over the configured table.
type session struct {
	cfg      *config.Config
	location *blob.Location
	source   *delta.ConversionSource
	logs     io.Closer
}

func (s *session) Close() error {
	return errors.Join(s.source.Close(), s.logs.Close())
}

func openSession(cmd *cobra.Command, opts ...delta.SourceOption) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cmd.SilenceUsage = true

	logs, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "config", cfg)

	client, loc, err := blob.OpenLocation(cmd.Context(), cfg.TableURI, cfg.BlobConfig())
	if err != nil {
		logs.Close()
		return nil, err
	}
	log, err := deltalog.New(client, loc.BasePath(), cfg.LogOptions()...)
	if err != nil {
		logs.Close()
		return nil, err
	}

	if cfg.TableName != "" {
		opts = append([]delta.SourceOption{delta.WithTableName(cfg.TableName)}, opts...)
	}
	return &session{
		cfg:      cfg,
		location: loc,
		source:   delta.NewConversionSource(log, opts...),
		logs:     logs,
	}, nil
}
