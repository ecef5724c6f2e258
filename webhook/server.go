// Package webhook exposes birthdaybot over HTTP for messaging integrations.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/dhamidi/birthdaybot"
	"github.com/dhamidi/birthdaybot/birthday"
	"github.com/dhamidi/birthdaybot/history"
)

// MaxBodyBytes is the largest request body the server accepts.
const MaxBodyBytes = 64 << 10

const instrumentationName = "github.com/dhamidi/birthdaybot/webhook"

// Responder turns an incoming chat message into a reply.
// *birthdaybot.Agent implements it.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// Server serves the webhook API. A nil store disables transcript recording.
type Server struct {
	responder Responder
	store     *history.Store
	clock     birthdaybot.Clock
	replies   birthdaybot.Replies
	log       *slog.Logger
	tracing   trace.TracerProvider
	tracer    trace.Tracer
	checks    metric.Int64Counter

	// recordMu serialises load-append-save of transcripts.
	recordMu sync.Mutex
}

// NewServer constructs the Server with all its dependencies.
func NewServer(responder Responder, store *history.Store, clock birthdaybot.Clock, replies birthdaybot.Replies, log *slog.Logger) *Server {
	s := &Server{
		responder: responder,
		store:     store,
		clock:     clock,
		replies:   replies,
		log:       log,
	}
	return s.WithTracerProvider(otel.GetTracerProvider()).WithMeterProvider(otel.GetMeterProvider())
}

// WithTracerProvider traces requests through tp instead of the global
// tracer provider. Call it before Handler.
func (s *Server) WithTracerProvider(tp trace.TracerProvider) *Server {
	s.tracing = tp
	s.tracer = tp.Tracer(instrumentationName)
	return s
}

// WithMeterProvider records check outcomes through mp instead of the
// global meter provider.
func (s *Server) WithMeterProvider(mp metric.MeterProvider) *Server {
	checks, err := mp.Meter(instrumentationName).Int64Counter(
		"birthdaybot.checks",
		metric.WithDescription("Birthday checks answered, by result"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		s.log.Warn("failed to create checks counter", slog.String("error", err.Error()))
		checks = noop.Int64Counter{}
	}
	s.checks = checks
	return s
}

// Handler returns the routed http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(NewSlogLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(NewMaxBodySizeHandler(MaxBodyBytes))

	r.Get("/healthz", s.health)
	r.Post("/messages", s.message)
	r.Post("/check", s.check)

	return otelhttp.NewHandler(r, "birthdaybot-webhook",
		otelhttp.WithTracerProvider(s.tracing),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz"
		}),
	)
}

type messageRequest struct {
	From string `json:"from"`
	Text string `json:"text"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

type checkRequest struct {
	Text  string `json:"text"`
	Today string `json:"today,omitempty"`
}

type checkResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
	Today   string `json:"today"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.From = strings.TrimSpace(req.From)
	if req.From == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "from and text are required")
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "Server.message",
		trace.WithAttributes(attribute.Int("message.length", len(req.Text))))
	defer span.End()

	reply, err := s.responder.Respond(ctx, req.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "respond failed")
		s.log.ErrorContext(ctx, "failed to respond",
			slog.String("from", req.From),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "could not generate a reply")
		return
	}

	if err := s.record(ctx, req.From, req.Text, reply); err != nil {
		// The user still gets the reply; the transcript is best effort.
		s.log.ErrorContext(ctx, "failed to record conversation",
			slog.String("from", req.From),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, messageResponse{Reply: reply})
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !s.decode(w, r, &req) {
		return
	}

	today := s.clock.Today()
	if req.Today != "" {
		parsed, err := birthday.Parse(strings.TrimSpace(req.Today))
		if err != nil {
			writeError(w, http.StatusBadRequest, "today must be a DD-MM-YYYY date")
			return
		}
		today = parsed
	}

	result := birthday.Check(req.Text, today)
	s.checks.Add(r.Context(), 1, metric.WithAttributes(attribute.String("result", result.String())))
	writeJSON(w, http.StatusOK, checkResponse{
		Result:  result.String(),
		Message: s.replies.Explain(req.Text, result),
		Today:   today.String(),
	})
}

// record appends the exchange to the sender's latest conversation.
func (s *Server) record(ctx context.Context, from, text, reply string) error {
	if s.store == nil {
		return nil
	}
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	var conv *history.Conversation
	id, err := s.store.LatestFor(ctx, from)
	switch {
	case err == nil:
		conv, err = s.store.Load(ctx, id)
		if err != nil {
			return err
		}
	case errors.Is(err, history.ErrConversationNotFound):
		conv, err = history.New(from)
		if err != nil {
			return err
		}
	default:
		return err
	}

	conv.Append(genai.NewContentFromText(text, genai.RoleUser))
	conv.Append(genai.NewContentFromText(reply, genai.RoleModel))
	return s.store.Save(ctx, conv)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	err := json.NewDecoder(r.Body).Decode(into)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "request body is empty")
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed JSON: %v", err))
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
