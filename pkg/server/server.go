// Package server receives Slack Events API deliveries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/policy"
	"github.com/adforge/copybot/pkg/usecase/normalizer"
	"github.com/adforge/copybot/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

const (
	MaxBodyBytes   = 1 << 20
	DefaultTimeout = 3 * time.Minute

	shutdownTimeout = 30 * time.Second
)

type Router interface {
	Route(ctx context.Context, ev *model.EventContext) (*model.Route, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev *model.EventContext, route *model.Route) error
	// ReportFailure tells the user that an event could not be handled
	ReportFailure(ctx context.Context, ev *model.EventContext, err error)
}

// DeliveryStore records delivery ids. AdmitEvent returns false for a delivery that was
// already admitted.
type DeliveryStore interface {
	AdmitEvent(ctx context.Context, deliveryID string) (bool, error)
}

type Admitter interface {
	Admit(ctx context.Context, ev *model.EventContext) (*policy.Decision, error)
}

type Server struct {
	signingSecret string
	store         DeliveryStore
	router        Router
	dispatcher    Dispatcher
	admission     Admitter
	timeout       time.Duration

	inflight sync.WaitGroup
}

type Option func(*Server)

func WithAdmission(a Admitter) Option {
	return func(s *Server) {
		s.admission = a
	}
}

// WithEventTimeout bounds the background handling of one event
func WithEventTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(signingSecret string, store DeliveryStore, router Router, dispatcher Dispatcher, opts ...Option) *Server {
	s := &Server{
		signingSecret: signingSecret,
		store:         store,
		router:        router,
		dispatcher:    dispatcher,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /slack/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run serves on addr until ctx is cancelled, then drains in-flight events.
func (s *Server) Run(ctx context.Context, addr string) error {
	logger := logging.From(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- goerr.Wrap(err, "server stopped", goerr.V("addr", addr))
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", logging.ErrAttr(err))
	}
	s.Wait()
	return nil
}

// Wait blocks until every background event handler has returned
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, s.signingSecret)
	if err != nil {
		return goerr.Wrap(err, "invalid signature headers")
	}
	if _, err := sv.Write(body); err != nil {
		return goerr.Wrap(err, "failed to hash body")
	}
	if err := sv.Ensure(); err != nil {
		return goerr.Wrap(err, "signature mismatch")
	}
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := s.verify(r.Header, body); err != nil {
		logger.Warn("rejected unsigned request", logging.ErrAttr(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	env, err := normalizer.ParseEnvelope(body)
	if err != nil {
		logger.Warn("malformed envelope", logging.ErrAttr(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if env.Type == normalizer.EnvelopeURLVerification {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": env.Challenge})
		return
	}

	ev := normalizer.Normalize(env)
	if ev == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	logger = logger.With("delivery_id", ev.DeliveryID, "channel", ev.ChannelID, "kind", ev.Kind)

	if s.admission != nil {
		decision, err := s.admission.Admit(ctx, ev)
		if err != nil {
			logger.Error("admission policy failed", logging.ErrAttr(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !decision.Allow {
			logger.Info("event denied by policy", "reason", decision.Reason)
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	fresh, err := s.store.AdmitEvent(ctx, ev.DeliveryID)
	if err != nil {
		logger.Error("failed to record delivery", logging.ErrAttr(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !fresh {
		logger.Debug("duplicate delivery ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)

	bg := logging.With(context.WithoutCancel(ctx), logger)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.handle(bg, ev)
	}()
}

func (s *Server) handle(ctx context.Context, ev *model.EventContext) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	logger := logging.From(ctx)

	// Dispatch recovers agent panics itself, so one reaching here came from routing
	defer func() {
		if r := recover(); r != nil {
			s.dispatcher.ReportFailure(ctx, ev, goerr.New("event handler panic", goerr.V("panic", fmt.Sprint(r))))
		}
	}()

	route, err := s.router.Route(ctx, ev)
	if err != nil {
		// the delivery is already admitted, so a redelivery would be dropped
		s.dispatcher.ReportFailure(ctx, ev, goerr.Wrap(err, "failed to route event"))
		return
	}
	if route == nil {
		return
	}

	logger.Info("event routed", "agent", route.Agent, "by_llm", route.ByLLM)
	if err := s.dispatcher.Dispatch(ctx, ev, route); err != nil {
		logger.Warn("event handling failed", logging.ErrAttr(err))
	}
}
