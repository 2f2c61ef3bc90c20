package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &buf))

	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, ShutdownOTel(context.Background(), providers))
}

func TestTracingHandlerNamesSpansByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(previous)

	router := mux.NewRouter()
	router.HandleFunc("/lists/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, TraceFields(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	// mux resolves the route before the span name is formatted only when the
	// tracing handler sits inside the router.
	router.Use(func(next http.Handler) http.Handler { return TracingHandler(next, "watchlist") })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/lists/42", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /lists/{id}", spans[0].Name())
}

func TestTraceFieldsWithoutSpan(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))
}
