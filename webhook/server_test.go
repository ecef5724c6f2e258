package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dhamidi/birthdaybot"
	"github.com/dhamidi/birthdaybot/history"
	"github.com/dhamidi/birthdaybot/webhook"
)

// fakeResponder returns canned replies and remembers what it was asked.
type fakeResponder struct {
	reply    string
	err      error
	messages []string
}

func (f *fakeResponder) Respond(ctx context.Context, message string) (string, error) {
	f.messages = append(f.messages, message)
	return f.reply, f.err
}

var september4 = time.Date(2026, time.September, 4, 9, 30, 0, 0, time.UTC)

func newTestHandler(t *testing.T, responder webhook.Responder, store *history.Store) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := webhook.NewServer(responder, store, birthdaybot.FixedClock(september4), birthdaybot.DefaultReplies, logger)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// TestHealth_returnsOK verifies that GET /healthz returns {"status":"ok"}.
func TestHealth_returnsOK(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}

// TestCheck_usesClockAndReplies covers the three outcomes against the
// server's clock.
func TestCheck_usesClockAndReplies(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, nil)

	tests := []struct {
		text    string
		result  string
		message string
	}{
		{"My birthday is 04-09-2025", "is_birthday_today", "Happy Birthday 🎉"},
		{"25-12-1997", "not_birthday_today", "Not your birthday today"},
		{"12/25/1997", "format_invalid", birthdaybot.DefaultReplies.FormatInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			payload, _ := json.Marshal(map[string]string{"text": tt.text})
			rec := do(t, h, http.MethodPost, "/check", string(payload))

			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			require.Equal(t, tt.result, body["result"])
			require.Equal(t, tt.message, body["message"])
			require.Equal(t, "04-09-2026", body["today"])
		})
	}
}

// TestCheck_invalidCalendarDate verifies that well-formed but impossible
// dates get their own reply while keeping the format_invalid tag.
func TestCheck_invalidCalendarDate(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, nil)

	for _, text := range []string{"31-02-1997", "My birthday is 25-13-1995"} {
		t.Run(text, func(t *testing.T) {
			payload, _ := json.Marshal(map[string]string{"text": text})
			rec := do(t, h, http.MethodPost, "/check", string(payload))

			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			require.Equal(t, "format_invalid", body["result"])
			require.Equal(t, birthdaybot.DefaultReplies.InvalidDate, body["message"])
		})
	}
}

func TestCheck_explicitToday(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, nil)

	rec := do(t, h, http.MethodPost, "/check", `{"text": "25-12-1997", "today": "25-12-2030"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "is_birthday_today", body["result"])
	require.Equal(t, "25-12-2030", body["today"])
}

func TestCheck_rejectsBadToday(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, nil)

	rec := do(t, h, http.MethodPost, "/check", `{"text": "25-12-1997", "today": "2030-12-25"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "DD-MM-YYYY")
}

func TestCheck_rejectsMalformedJSON(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, nil)

	rec := do(t, h, http.MethodPost, "/check", `{"text":`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessage_returnsReply(t *testing.T) {
	responder := &fakeResponder{reply: "Happy Birthday 🎉"}
	h := newTestHandler(t, responder, nil)

	rec := do(t, h, http.MethodPost, "/messages", `{"from": "+1234567890", "text": "My birthday is 04-09-2025"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Happy Birthday 🎉", decodeBody(t, rec)["reply"])
	require.Equal(t, []string{"My birthday is 04-09-2025"}, responder.messages)
}

func TestMessage_requiresFromAndText(t *testing.T) {
	responder := &fakeResponder{reply: "unused"}
	h := newTestHandler(t, responder, nil)

	for _, body := range []string{
		`{"text": "hello"}`,
		`{"from": "+1234567890"}`,
		`{"from": "  ", "text": "hello"}`,
		``,
	} {
		rec := do(t, h, http.MethodPost, "/messages", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	require.Empty(t, responder.messages)
}

func TestMessage_responderFailure(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{err: errors.New("model unavailable")}, nil)

	rec := do(t, h, http.MethodPost, "/messages", `{"from": "+1234567890", "text": "Hi"}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotContains(t, decodeBody(t, rec)["error"], "model unavailable")
}

func TestMessage_rejectsLargeBodies(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{reply: "unused"}, nil)

	large := `{"from": "+1", "text": "` + strings.Repeat("a", webhook.MaxBodyBytes) + `"}`
	rec := do(t, h, http.MethodPost, "/messages", large)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// TestMessage_recordsTranscript verifies that consecutive messages from one
// sender land in the same stored conversation.
func TestMessage_recordsTranscript(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	responder := &fakeResponder{reply: "Not your birthday today"}
	h := newTestHandler(t, responder, store)

	for _, text := range []string{"Hello!", "25-12-1997"} {
		payload, _ := json.Marshal(map[string]string{"from": "+1234567890", "text": text})
		rec := do(t, h, http.MethodPost, "/messages", string(payload))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	ctx := context.Background()
	id, err := store.LatestFor(ctx, "+1234567890")
	require.NoError(t, err)

	conv, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 4)

	contents, err := birthdaybot.ContentsFromConversation(conv)
	require.NoError(t, err)
	require.Equal(t, "user", contents[2].Role)
	require.Equal(t, "25-12-1997", contents[2].Parts[0].Text)
	require.Equal(t, "model", contents[3].Role)
	require.Equal(t, "Not your birthday today", contents[3].Parts[0].Text)
}

func TestSlogLogger_logsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	srv := webhook.NewServer(&fakeResponder{}, nil, birthdaybot.FixedClock(september4), birthdaybot.DefaultReplies, logger)

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	require.Equal(t, "GET", logEntry["method"])
	require.Equal(t, "/healthz", logEntry["path"])
	require.EqualValues(t, http.StatusOK, logEntry["status"])
	require.NotEmpty(t, logEntry["request_id"])
}

// TestCheck_countsResults verifies that each check is counted under its
// result tag.
func TestCheck_countsResults(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := webhook.NewServer(&fakeResponder{}, nil, birthdaybot.FixedClock(september4), birthdaybot.DefaultReplies, logger).
		WithMeterProvider(mp)
	h := srv.Handler()

	for _, text := range []string{"04-09-1990", "31-02-1997", "12/25/1997"} {
		payload, _ := json.Marshal(map[string]string{"text": text})
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/check", string(payload)).Code)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "birthdaybot.checks" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value(attribute.Key("result"))
				counts[result.AsString()] += dp.Value
			}
		}
	}
	require.Equal(t, map[string]int64{"is_birthday_today": 1, "format_invalid": 2}, counts)
}

// TestMessage_traced verifies that message requests produce a server span
// and a span around the reply, while health checks are not traced.
func TestMessage_traced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := webhook.NewServer(&fakeResponder{reply: "Happy Birthday 🎉"}, nil, birthdaybot.FixedClock(september4), birthdaybot.DefaultReplies, logger).
		WithTracerProvider(tp)
	h := srv.Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/messages", `{"from": "+1", "text": "04-09-1990"}`).Code)

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	require.ElementsMatch(t, []string{"Server.message", "birthdaybot-webhook"}, names)
}
