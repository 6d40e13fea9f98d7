// Package switchboard is the tool surface agents call: register, discover,
// broadcast, direct message and history. Every operation returns a Response;
// failures are described in it rather than returned as Go errors.
package switchboard

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/zulandar/switchboard/internal/ledger"
	"github.com/zulandar/switchboard/internal/mirror"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/router"
	"github.com/zulandar/switchboard/internal/transport"
)

// ErrorKind classifies a failed Response.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindResolution ErrorKind = "resolution"
	KindTransport  ErrorKind = "transport"
	KindInternal   ErrorKind = "internal"
)

// User-facing messages for unavailable features.
const (
	LedgerDisabledText = "history ledger is not enabled"
	NeedsBusText       = "check_messages requires the bus transport"
)

// Response is the result of one operation.
type Response struct {
	Text    string    `json:"text"`
	Data    any       `json:"data,omitempty"`
	IsError bool      `json:"is_error"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

func ok(data any, format string, args ...any) Response {
	return Response{Text: fmt.Sprintf(format, args...), Data: data}
}

func failure(kind ErrorKind, format string, args ...any) Response {
	return Response{Text: fmt.Sprintf(format, args...), IsError: true, Kind: kind}
}

// fromError maps err to a Response, treating router validation errors as
// user input problems and everything else as internal.
func fromError(err error) Response {
	if errors.Is(err, router.ErrInvalid) {
		return failure(KindValidation, "%v", err)
	}
	return failure(KindInternal, "%v", err)
}

// Options configures a Service.
type Options struct {
	Registry  *presence.Registry
	Transport transport.Transport
	// Ledger is nil when history is disabled.
	Ledger *ledger.Ledger
	// Mirror is optional.
	Mirror       *mirror.Mirror
	CheckTimeout time.Duration
	Concurrency  int
	Logger       *slog.Logger
}

// Service implements the tool operations.
type Service struct {
	registry     *presence.Registry
	router       *router.Router
	transport    transport.Transport
	ledger       *ledger.Ledger
	mirror       *mirror.Mirror
	checkTimeout time.Duration
	logger       *slog.Logger
}

// New creates a Service from opts.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	routerOpts := []router.Option{
		router.WithLogger(logger.With("component", "router")),
		router.WithConcurrency(opts.Concurrency),
	}
	if opts.Ledger != nil {
		routerOpts = append(routerOpts, router.WithHistory(opts.Ledger))
	}
	timeout := opts.CheckTimeout
	if timeout <= 0 {
		timeout = router.DefaultCheckTimeout
	}
	return &Service{
		registry:     opts.Registry,
		router:       router.New(opts.Registry, opts.Transport, routerOpts...),
		transport:    opts.Transport,
		ledger:       opts.Ledger,
		mirror:       opts.Mirror,
		checkTimeout: timeout,
		logger:       logger.With("component", "switchboard"),
	}
}

// LedgerEnabled reports whether history operations are available.
func (s *Service) LedgerEnabled() bool {
	return s.ledger != nil
}

// guard converts a panic in op into an internal-error Response.
func (s *Service) guard(op string, resp *Response) {
	if r := recover(); r != nil {
		s.logger.Error("operation panicked", "op", op, "panic", r, "stack", string(debug.Stack()))
		*resp = failure(KindInternal, "%s: unexpected failure: %v", op, r)
	}
}
