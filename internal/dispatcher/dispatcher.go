// Package dispatcher routes one user message to one backend call and records
// the exchange in the session store.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AgentChat/internal/agent"
	"AgentChat/internal/backend"
	"AgentChat/internal/cache"
	"AgentChat/internal/prompt"
	"AgentChat/internal/session"
)

// Archiver receives completed exchanges. Satisfied by archive.Archive.
type Archiver interface {
	RecordExchange(sessionID string, startTime time.Time, backend string, msgs ...session.Message) error
}

// Request is one inbound chat message with its routing choices.
type Request struct {
	SessionID string
	Text      string
	Backend   string
	Usecase   string
}

// Dispatcher coordinates the session store, the backend registry and the
// optional tool planner. All collaborators are injected; the dispatcher owns
// no hidden globals.
type Dispatcher struct {
	store    *session.Store
	registry *backend.Registry
	cache    *cache.Cache
	planner  *agent.Planner // nil when MCP support is disabled
	arch     Archiver
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter

	timeout time.Duration
	window  int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPlanner enables tool augmentation for the agentic use case.
func WithPlanner(p *agent.Planner) Option {
	return func(d *Dispatcher) { d.planner = p }
}

// WithArchive enables the best-effort transcript archive.
func WithArchive(a Archiver) Option {
	return func(d *Dispatcher) { d.arch = a }
}

// WithTimeout sets the per-call provider timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithHistoryWindow limits how many trailing messages are forwarded to the
// provider.
func WithHistoryWindow(n int) Option {
	return func(d *Dispatcher) { d.window = n }
}

// New creates a Dispatcher over the given store and registry.
func New(store *session.Store, registry *backend.Registry, respCache *cache.Cache, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		registry: registry,
		cache:    respCache,
		logger:   logger,
		tracer:   tracer,
		meter:    meter,
		timeout:  60 * time.Second,
		window:   20,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Store exposes the session store for gateway-side history operations.
func (d *Dispatcher) Store() *session.Store {
	return d.store
}

// Backends returns the configured provider names.
func (d *Dispatcher) Backends() []string {
	return d.registry.Names()
}

// Lookup resolves a provider name to its adapter.
func (d *Dispatcher) Lookup(name string) (backend.Adapter, error) {
	return d.registry.Lookup(name)
}

// Handle routes one user message: append it to the session, invoke the
// selected backend with the history, append the reply and return it. On a
// backend failure no assistant message is appended and the classified error
// propagates unchanged to the caller.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (string, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch_message")
	defer span.End()

	if counter, err := d.meter.Int64Counter(
		"chat.requests",
		metric.WithDescription("Dispatched chat requests"),
	); err == nil {
		counter.Add(ctx, 1)
	}

	sess := d.store.GetOrCreate(req.SessionID)

	// At most one exchange in flight per session id.
	release, err := d.store.Acquire(req.SessionID)
	if err != nil {
		return "", err
	}
	defer release()

	userMsg := session.Message{
		Role:      session.RoleUser,
		Content:   req.Text,
		Timestamp: time.Now(),
	}
	if err := d.store.Append(req.SessionID, userMsg); err != nil {
		return "", err
	}

	history, err := d.store.History(req.SessionID)
	if err != nil {
		return "", err
	}

	adapter, err := d.registry.Lookup(req.Backend)
	if err != nil {
		return "", err
	}
	if d.planner != nil && req.Usecase == prompt.UsecaseAgentic {
		adapter = d.planner.Wrap(adapter)
	}

	outbound := d.outbound(req.Usecase, history)

	cacheKey := cache.Key(req.Backend+"/"+req.Usecase, outbound)
	if reply, ok := d.cache.Get(cacheKey); ok {
		d.logger.Info("cache hit", "session_id", req.SessionID, "key", cacheKey[:16])
		if err := d.recordReply(sess, req, userMsg, reply); err != nil {
			return "", err
		}
		return reply, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	reply, err := adapter.Generate(callCtx, outbound)
	if err != nil {
		d.logger.Error("backend call failed", "session_id", req.SessionID, "backend", req.Backend, "error", err)
		return "", err
	}

	d.cache.Put(cacheKey, reply)
	if err := d.recordReply(sess, req, userMsg, reply); err != nil {
		return "", err
	}
	return reply, nil
}

// recordReply appends the assistant message and archives the exchange. An
// unknown session here means the client disconnected while the provider call
// was in flight; the reply is discarded without touching history.
func (d *Dispatcher) recordReply(sess *session.Session, req Request, user session.Message, reply string) error {
	assistant := session.Message{
		Role:      session.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
	}
	if err := d.store.Append(req.SessionID, assistant); err != nil {
		d.logger.Warn("discarding reply for vanished session", "session_id", req.SessionID)
		return err
	}

	if d.arch != nil {
		go func() {
			if err := d.arch.RecordExchange(req.SessionID, sess.StartTime, req.Backend, user, assistant); err != nil {
				d.logger.Error("failed to archive exchange", "session_id", req.SessionID, "error", err)
			}
		}()
	}
	return nil
}

// outbound builds the provider-facing message list: the use-case system
// prompt followed by the trailing history window. The system prompt is never
// stored in the session itself.
func (d *Dispatcher) outbound(usecase string, history []session.Message) []session.Message {
	if d.window > 0 && len(history) > d.window {
		history = history[len(history)-d.window:]
	}

	out := make([]session.Message, 0, len(history)+1)
	out = append(out, session.Message{
		Role:      session.RoleSystem,
		Content:   prompt.For(usecase),
		Timestamp: time.Now(),
	})
	out = append(out, history...)
	return out
}

