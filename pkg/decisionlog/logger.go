package decisionlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/telemetry"
)

// Sink stores or ships decision log entries.
type Sink interface {
	// Name identifies the sink in metrics.
	Name() string

	// Write records one entry.
	Write(ctx context.Context, e *Entry) error

	// Close flushes buffered entries and releases resources.
	Close(ctx context.Context) error
}

// Logger filters entries by level and writes them to a sink. Write failures
// are counted and logged; they never fail an authorization.
type Logger struct {
	sink    Sink
	level   config.LogLevel
	metrics *telemetry.Metrics
	logger  *telemetry.Logger
}

type options struct {
	tel        *telemetry.Telemetry
	stdout     io.Writer
	memoryPath string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures New.
type Option func(*options)

// WithTelemetry sets the logger and metrics used for sink failures.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(o *options) { o.tel = tel }
}

// WithStdout replaces the writer of the STDOUT sink.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithMemoryPath stores MEMORY entries in a database file instead of memory.
func WithMemoryPath(path string) Option {
	return func(o *options) { o.memoryPath = path }
}

// WithHTTPClient replaces the client of the LOCK sink.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClock overrides the clock used for TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates the logger for a bootstrap configuration.
func New(ctx context.Context, cfg *config.BootstrapConfig, opts ...Option) (*Logger, error) {
	o := &options{
		stdout: os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tel == nil {
		o.tel = telemetry.NewNopTelemetry()
	}

	var (
		sink Sink
		err  error
	)
	switch cfg.Log.Type {
	case config.LogTypeOff, "":
		sink = offSink{}
	case config.LogTypeStdout:
		sink = NewStdoutSink(o.stdout)
	case config.LogTypeMemory:
		if cfg.Log.Memory == nil {
			return nil, errors.New("log type MEMORY requires a memory configuration")
		}
		sink, err = NewMemorySink(ctx, MemoryConfig{
			Path:        o.memoryPath,
			TTL:         time.Duration(cfg.Log.Memory.LogTTL) * time.Second,
			MaxItems:    cfg.Log.Memory.MaxItems,
			MaxItemSize: cfg.Log.Memory.MaxItemSize,
			Now:         o.now,
		})
	case config.LogTypeLock:
		if cfg.Lock == nil {
			return nil, errors.New("log type LOCK requires a lock service configuration")
		}
		sink, err = NewLockSink(LockConfig{
			Service:    *cfg.Lock,
			HTTPClient: o.httpClient,
			Logger:     o.tel.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported log type %q", cfg.Log.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s decision log: %w", cfg.Log.Type, err)
	}

	return &Logger{
		sink:    sink,
		level:   cfg.Log.Level,
		metrics: o.tel.Metrics,
		logger:  o.tel.Logger.NewComponentLogger("decision-log"),
	}, nil
}

// NewWithSink creates a logger over an existing sink.
func NewWithSink(sink Sink, level config.LogLevel, tel *telemetry.Telemetry) *Logger {
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}
	return &Logger{
		sink:    sink,
		level:   level,
		metrics: tel.Metrics,
		logger:  tel.Logger.NewComponentLogger("decision-log"),
	}
}

// Log writes e if its level passes the configured minimum.
func (l *Logger) Log(ctx context.Context, e *Entry) {
	name := l.sink.Name()
	if !Enabled(e.Level, l.level) {
		l.metrics.RecordLogEntry(name, "filtered")
		return
	}
	if err := l.sink.Write(ctx, e); err != nil {
		l.metrics.RecordLogEntry(name, "failed")
		l.logger.WithError(err).WithRequestID(e.RequestID).Warn("failed to write decision log entry")
		return
	}
	l.metrics.RecordLogEntry(name, "written")
}

// Sink returns the underlying sink.
func (l *Logger) Sink() Sink {
	return l.sink
}

// Memory returns the sink as a *MemorySink when the log type is MEMORY.
func (l *Logger) Memory() (*MemorySink, bool) {
	m, ok := l.sink.(*MemorySink)
	return m, ok
}

// Close flushes and closes the sink.
func (l *Logger) Close(ctx context.Context) error {
	return l.sink.Close(ctx)
}

// offSink discards every entry.
type offSink struct{}

func (offSink) Name() string                        { return "off" }
func (offSink) Write(context.Context, *Entry) error { return nil }
func (offSink) Close(context.Context) error         { return nil }
