package decisionlog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/telemetry"
)

const (
	lockConfigSuffix = "/.well-known/lock-server-configuration"
	lockAuditPath    = "/audit/log"

	defaultBatchSize  = 100
	defaultBufferSize = 1024
)

// ErrSinkClosed is returned by Write after Close.
var ErrSinkClosed = errors.New("decision log sink closed")

// ErrBufferFull is returned when the send buffer cannot take another entry.
var ErrBufferFull = errors.New("decision log buffer full, entry dropped")

// LockConfig configures a LockSink.
type LockConfig struct {
	// Service is the lock service configuration.
	Service config.LockServiceConfig

	// HTTPClient overrides the client. Defaults to a client honouring
	// AcceptInvalidCerts.
	HTTPClient *http.Client

	// BatchSize is the number of entries sent per request.
	BatchSize int

	// BufferSize is the capacity of the send buffer.
	BufferSize int

	// Logger reports delivery failures.
	Logger *telemetry.Logger
}

// LockSink ships entries to the lock service audit endpoint in batches. A
// batch is sent when it is full, every log interval, and on Close.
type LockSink struct {
	cfg      LockConfig
	endpoint string
	client   *http.Client
	logger   *telemetry.Logger

	buffer chan *Entry
	flush  chan chan struct{}
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	ctx    context.Context

	statsMu sync.Mutex
	sent    int
	failed  int
}

// AuditEndpoint derives the audit endpoint from the lock service
// configuration URI.
func AuditEndpoint(configURI string) (string, error) {
	u, err := url.Parse(configURI)
	if err != nil {
		return "", fmt.Errorf("invalid lock config URI: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid lock config URI %q", configURI)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, lockConfigSuffix), "/") + lockAuditPath
	u.RawQuery = ""
	return u.String(), nil
}

// NewLockSink starts the background sender.
func NewLockSink(cfg LockConfig) (*LockSink, error) {
	endpoint, err := AuditEndpoint(cfg.Service.ConfigURI)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNopLogger()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Service.AcceptInvalidCerts}, //nolint:gosec
			},
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &LockSink{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		logger:   cfg.Logger.NewComponentLogger("lock-sink"),
		buffer:   make(chan *Entry, cfg.BufferSize),
		flush:    make(chan chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.processEntries()
	return s, nil
}

// Name implements Sink.
func (s *LockSink) Name() string { return "lock" }

// Endpoint returns the audit endpoint entries are posted to.
func (s *LockSink) Endpoint() string { return s.endpoint }

// Write implements Sink. Entries below the lock service log level are
// skipped.
func (s *LockSink) Write(_ context.Context, e *Entry) error {
	if !Enabled(e.Level, s.cfg.Service.LogLevel) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.buffer <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

// Flush sends the buffered entries and waits until they are delivered or
// ctx is done.
func (s *LockSink) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.flush <- done:
	case <-s.ctx.Done():
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the number of entries delivered and dropped after a failed
// request.
func (s *LockSink) Stats() (sent, failed int) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.sent, s.failed
}

// processEntries batches entries from the buffer.
func (s *LockSink) processEntries() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if iv := s.cfg.Service.LogInterval; iv != nil && iv.Duration > 0 {
		ticker := time.NewTicker(iv.Duration)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]*Entry, 0, s.cfg.BatchSize)
	send := func() {
		if len(batch) > 0 {
			s.sendBatch(batch)
			batch = make([]*Entry, 0, s.cfg.BatchSize)
		}
	}
	drain := func() {
		for {
			select {
			case e := <-s.buffer:
				batch = append(batch, e)
				if len(batch) >= s.cfg.BatchSize {
					send()
				}
			default:
				return
			}
		}
	}

	for {
		select {
		case e := <-s.buffer:
			batch = append(batch, e)
			if len(batch) >= s.cfg.BatchSize {
				send()
			}

		case <-tick:
			send()

		case done := <-s.flush:
			drain()
			send()
			close(done)

		case <-s.ctx.Done():
			// Deliver what is left before shutting down.
			drain()
			send()
			return
		}
	}
}

// sendBatch posts a batch of entries as a JSON array.
func (s *LockSink) sendBatch(batch []*Entry) {
	err := s.post(batch)

	s.statsMu.Lock()
	if err != nil {
		s.failed += len(batch)
	} else {
		s.sent += len(batch)
	}
	s.statsMu.Unlock()

	if err != nil {
		s.logger.WithError(err).Warnf("dropped %d decision log entries", len(batch))
	}
}

func (s *LockSink) post(batch []*Entry) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Service.SSAJWT != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Service.SSAJWT)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("lock service returned %s", resp.Status)
	}
	return nil
}

// Close implements Sink. It sends the buffered entries and stops the
// sender.
func (s *LockSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("lock sink shutdown timeout: %w", ctx.Err())
	}
}
