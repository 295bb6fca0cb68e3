package esl

import (
	"time"

	"github.com/mjarosz/goesl/internal/logger"
)

// config accumulates the options shared by Dial and Listen.
type config struct {
	connTimeout        time.Duration
	respTimeout        time.Duration
	asyncThreadType    AsyncThreadType
	incomingBufferSize int
	silenceUnhandled   bool
	onClose            func(*Connection)
	logger             *logger.Logger

	preInitFn    func(*Connection, map[string]string)
	customInitFn func(*Connection, map[string]string) error
}

func defaultConfig() *config {
	return &config{
		connTimeout:        DefaultConnTimeout,
		respTimeout:        DefaultRespTimeout,
		asyncThreadType:    Cooperative,
		incomingBufferSize: DefaultIncomingBufferSize,
	}
}

// DialOption configures Dial.
type DialOption func(*config)

// ListenOption configures Listen. The shared options return a plain
// func(*config) and so can be passed to Dial or Listen; a value typed
// DialOption (WithConnTimeout) is not a ListenOption.
type ListenOption func(*config)

// WithConnTimeout sets the TCP dial timeout (inbound only). Default 5s.
func WithConnTimeout(d time.Duration) DialOption {
	return func(c *config) { c.connTimeout = d }
}

// WithRespTimeout sets the default response timeout inherited by every
// façade call. Default 30s.
func WithRespTimeout(d time.Duration) func(*config) {
	return func(c *config) { c.respTimeout = d }
}

// WithAsyncThreadType selects the dispatch goroutine flavor. Default
// Cooperative.
func WithAsyncThreadType(t AsyncThreadType) func(*config) {
	return func(c *config) { c.asyncThreadType = t }
}

// WithOnClose registers a callback invoked exactly once when the connection
// closes.
func WithOnClose(fn func(*Connection)) func(*config) {
	return func(c *config) { c.onClose = fn }
}

// WithIncomingBufferSize bounds the event channel. Default 32.
func WithIncomingBufferSize(n int) func(*config) {
	return func(c *config) { c.incomingBufferSize = n }
}

// WithSilenceUnhandled suppresses the "no handler for event" warning.
func WithSilenceUnhandled(silence bool) func(*config) {
	return func(c *config) { c.silenceUnhandled = silence }
}

// WithLogger overrides the default namespaced logger.
func WithLogger(l *logger.Logger) func(*config) {
	return func(c *config) { c.logger = l }
}

// WithPreInitFn registers a hook invoked after the outbound "connect"
// handshake but before linger/myevents initialization, so it can bind event
// handlers before any channel events can be missed. Listener-only.
func WithPreInitFn(fn func(*Connection, map[string]string)) ListenOption {
	return func(c *config) { c.preInitFn = fn }
}

// WithCustomInitFn replaces the default linger+myevents initialization
// sequence. Listener-only.
func WithCustomInitFn(fn func(*Connection, map[string]string) error) ListenOption {
	return func(c *config) { c.customInitFn = fn }
}

func applyDial(opts []DialOption) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func applyListen(opts []ListenOption) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
