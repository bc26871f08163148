// Package transport manages the pooled HTTP client shared by all export
// operations, including recovery from connection-pool shutdown faults.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
)

// ErrExhaustedRetries is returned when an operation keeps hitting
// pool-shutdown faults after the retry budget is spent.
var ErrExhaustedRetries = errors.New("transport retries exhausted")

const (
	maxRecoveryAttempts = 3
	defaultRetryDelay   = 100 * time.Millisecond
)

// Manager owns the pooled HTTP client. Concurrent export operations share one
// Manager; when the pool is torn down mid-flight the manager rebuilds it
// exactly once per real failure, using a monotonic version counter to
// deduplicate rebuilds racing from multiple goroutines.
type Manager struct {
	cfg    config.RemoteConfig
	logger *logger.Logger

	// mu guards only the pool-reference swap and version bookkeeping.
	// It is never held across a network call.
	mu        sync.Mutex
	client    *http.Client
	transport *http.Transport
	shutdown  bool
	version   uint64

	retryDelay time.Duration
}

// NewManager creates a Manager with a freshly built connection pool.
func NewManager(cfg config.RemoteConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault()
	}
	m := &Manager{
		cfg:        cfg,
		logger:     log,
		retryDelay: defaultRetryDelay,
	}
	m.mu.Lock()
	m.rebuildLocked()
	m.mu.Unlock()
	return m
}

// rebuildLocked tears down the current pool and builds a new one.
// Callers must hold m.mu.
func (m *Manager) rebuildLocked() {
	if m.transport != nil {
		m.transport.CloseIdleConnections()
	}

	maxConns := m.cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 20
	}
	timeout := time.Duration(m.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	m.transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     5 * time.Minute,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	m.client = &http.Client{
		Transport: m.transport,
		Timeout:   timeout,
	}

	m.shutdown = false
	m.version++

	m.logger.Infow("Connection pool initialized",
		"version", m.version,
		"max_connections", maxConns,
	)
}

// Acquire returns the current pooled client, rebuilding the pool first if it
// has been marked shut down.
func (m *Manager) Acquire() *http.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		m.logger.Warnw("Connection pool was shut down, rebuilding", "version", m.version)
		m.rebuildLocked()
	}
	return m.client
}

// Version returns the current pool version. The counter only increases.
func (m *Manager) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// MarkShutdown flags the pool as unusable. The next Acquire rebuilds it.
func (m *Manager) MarkShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
}

// ForceReconnect rebuilds the pool unless another caller already rebuilt it
// after this call observed the current version.
func (m *Manager) ForceReconnect() {
	observed := m.Version()
	m.logger.Infow("Force reconnect requested", "version", observed)
	m.reconnectIfCurrent(observed)
}

// reconnectIfCurrent rebuilds the pool only if the version still matches the
// value the caller observed. Returns true if this call performed the rebuild.
func (m *Manager) reconnectIfCurrent(observed uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != observed {
		m.logger.Infow("Skipping rebuild, pool already reconnected",
			"observed_version", observed,
			"current_version", m.version,
		)
		return false
	}
	m.rebuildLocked()
	return true
}

// ExecuteWithRecovery runs op against the pooled client, recovering from
// pool-shutdown faults by rebuilding the pool and retrying, up to 3 attempts.
// Faults that are not pool-shutdown-class propagate immediately. When the
// retry budget is spent the last fault is wrapped in ErrExhaustedRetries.
func (m *Manager) ExecuteWithRecovery(op func(*http.Client) error) error {
	observed := m.Version()
	var lastErr error

	for attempt := 1; attempt <= maxRecoveryAttempts; attempt++ {
		client := m.Acquire()

		err := op(client)
		if err == nil {
			return nil
		}
		if !IsPoolShutdownError(err) {
			return err
		}
		lastErr = err

		if attempt == maxRecoveryAttempts {
			break
		}

		if m.reconnectIfCurrent(observed) {
			m.logger.Warnw("Pool shutdown fault, pool rebuilt",
				"attempt", attempt,
				"error", err,
			)
		} else {
			m.logger.Infow("Pool shutdown fault, retrying against pool rebuilt by another caller",
				"attempt", attempt,
			)
		}
		observed = m.Version()

		// Brief pause to let the rebuilt pool settle before retrying.
		time.Sleep(m.retryDelay)
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrExhaustedRetries, maxRecoveryAttempts, lastErr)
}

// poolShutdownMarkers are the error-text fragments that identify
// pool-shutdown-class transport faults.
var poolShutdownMarkers = []string{
	"connection pool shut down",
	"pool closed",
	"use of closed network connection",
	"client connection force closed",
}

// IsPoolShutdownError reports whether err looks like the shared connection
// pool was torn down underneath the caller.
func IsPoolShutdownError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range poolShutdownMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Close tears down the pool. In-flight calls fail naturally.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport != nil {
		m.transport.CloseIdleConnections()
	}
	m.shutdown = true
}
