package cli

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"civicdata/internal/config"
	"civicdata/internal/logging"
	"civicdata/internal/metrics"
	"civicdata/internal/metrics/datadog"
	"civicdata/internal/report"
	"civicdata/internal/storage"
)

// BackendCloser is a metrics backend the command owns and must close.
type BackendCloser interface {
	metrics.Backend
	Close() error
}

// BackendFactory builds the metrics backend named in the settings.
type BackendFactory func(ctx context.Context, service string, tags []string, flushEvery time.Duration) (BackendCloser, error)

// NewDatadogBackend is the production BackendFactory.
func NewDatadogBackend(ctx context.Context, service string, tags []string, flushEvery time.Duration) (BackendCloser, error) {
	return datadog.NewBackend(ctx, datadog.Options{
		Service:    service,
		Tags:       tags,
		FlushEvery: flushEvery,
	})
}

// GlobalFlags are accepted by every command. Empty values defer to the
// loaded settings.
type GlobalFlags struct {
	ConfigPath string
	Store      string
	DSN        string
	Format     string
	LogLevel   string
}

// Bind registers the flags as persistent flags of root.
func (g *GlobalFlags) Bind(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.StringVar(&g.ConfigPath, "config", "", "YAML settings file")
	pf.StringVar(&g.Store, "store", "", "store kind: sqlite, postgres or mssql")
	pf.StringVar(&g.DSN, "dsn", "", "store DSN (overrides settings and DSN_* variables)")
	pf.StringVar(&g.Format, "format", "text", "output format: text, json or yaml")
	pf.StringVar(&g.LogLevel, "log-level", "", "log level: debug, info, warn or error")
}

// Env is the per-invocation runtime: settings, logger, output format and
// the installed metrics backend.
type Env struct {
	Settings config.Settings
	Log      *zap.Logger
	Format   report.Format

	flags   GlobalFlags
	backend BackendCloser
}

// Setup loads settings and builds the logger. When the settings select
// Datadog and newBackend is non-nil, the backend is installed process-wide
// until Close. Problems with flags or settings come back as *UsageError.
func Setup(ctx context.Context, service string, g GlobalFlags, newBackend BackendFactory) (*Env, error) {
	format, err := report.ParseFormat(g.Format)
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	s, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, &UsageError{Err: err}
	}

	level := s.Log.Level
	if strings.TrimSpace(g.LogLevel) != "" {
		level = g.LogLevel
	}
	log, err := logging.New(level, s.Log.Development)
	if err != nil {
		return nil, &UsageError{Err: err}
	}

	e := &Env{Settings: s, Log: log.With(zap.String("service", service)), Format: format, flags: g}

	if strings.EqualFold(s.Metrics.Backend, "datadog") && newBackend != nil {
		b, err := newBackend(ctx, service, datadog.ParseTagsCSV(s.Metrics.Tags), s.Metrics.FlushEvery)
		if err != nil {
			_ = log.Sync()
			return nil, err
		}
		e.backend = b
		metrics.SetBackend(b)
	}
	return e, nil
}

// OpenStore opens the store selected by --store/--dsn and the settings.
func (e *Env) OpenStore(ctx context.Context) (*storage.Store, error) {
	cfg, err := e.Settings.StoreConfig(e.flags.Store, e.flags.DSN)
	if err != nil {
		return nil, &UsageError{Err: err}
	}
	e.Log.Debug("opening store", zap.String("kind", cfg.Kind), zap.String("dsn", logging.RedactDSN(cfg.DSN)))
	s, err := storage.Open(ctx, cfg)
	if errors.Is(err, storage.ErrUnsupportedKind) {
		return nil, &UsageError{Err: err}
	}
	return s, err
}

// Renderer returns a report renderer for the chosen format.
func (e *Env) Renderer(cmd *cobra.Command) *report.Renderer {
	return report.New(cmd.OutOrStdout(), e.Format)
}

// Close uninstalls and closes the metrics backend, flushing what it holds.
func (e *Env) Close() error {
	var errs []error
	if e.backend != nil {
		metrics.SetBackend(nil)
		if err := e.backend.Close(); err != nil {
			errs = append(errs, err)
		}
		e.backend = nil
	}
	// Sync on stderr fails with EINVAL on some platforms; ignore it.
	_ = e.Log.Sync()
	return errors.Join(errs...)
}
