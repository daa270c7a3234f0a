package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwrk-planet/board-service/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Все тесты пакета меняют slog.Default, поэтому без t.Parallel.

func zapConfig(out *bytes.Buffer) logger.Config {
	return logger.Config{
		Service:          "board-service",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		Output:           out,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		SampleTick:       1,
	}
}

func lastJSONLine(t *testing.T, out string) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &m), "expected JSON, got %s", out)
	return m
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("BOARD_ENV", "")
	t.Setenv("APP_ENV", "")
	require.Equal(t, logger.EnvDev, logger.DetectEnv())

	t.Setenv("APP_ENV", "staging")
	require.Equal(t, logger.EnvStage, logger.DetectEnv())

	t.Setenv("BOARD_ENV", "production")
	require.Equal(t, logger.EnvProd, logger.DetectEnv())
}

func TestParseLevel(t *testing.T) {
	lvl, err := logger.ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)

	lvl, err = logger.ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, lvl)

	_, err = logger.ParseLevel("loud")
	require.Error(t, err)
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var out bytes.Buffer
	logger.Init(logger.Config{
		Service: "board-service",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
		Output:  &out,
	})

	slog.Info("room created", "room", "AB12CD34")

	s := out.String()
	require.NotContains(t, s, "{")
	require.Contains(t, s, "room created")
	require.Contains(t, s, "service=board-service")
	require.Contains(t, s, "env=dev")
	require.Contains(t, s, "room=AB12CD34")
}

func TestInit_StageStd_JSONOutput(t *testing.T) {
	var out bytes.Buffer
	logger.Init(logger.Config{Env: logger.EnvStage, Backend: logger.BackendStd, Output: &out})

	slog.Warn("store slow")

	m := lastJSONLine(t, out.String())
	require.Equal(t, "store slow", m["msg"])
	require.Equal(t, logger.DefaultService, m["service"])
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var out bytes.Buffer
	logger.Init(zapConfig(&out))

	slog.Info("booted", slog.String("k", "v"))
	slog.Debug("hidden")

	m := lastJSONLine(t, out.String())
	require.Equal(t, "booted", m["msg"])
	require.Equal(t, "board-service", m["service"])
	require.Equal(t, "prod", m["env"])
	require.Equal(t, "1.2.3", m["version"])
	require.Equal(t, "INFO", m["level"])
	require.Equal(t, "v", m["k"])
	require.NotContains(t, out.String(), "hidden")
}

func TestFromCtx_PropagatesTraceIDs(t *testing.T) {
	var out bytes.Buffer
	logger.Init(zapConfig(&out))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTracerProvider(tp)

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.FromCtx(ctx).InfoContext(ctx, "with trace")
	span.End()

	m := lastJSONLine(t, out.String())
	require.Equal(t, "with trace", m["msg"])
	require.Equal(t, span.SpanContext().TraceID().String(), m["trace_id"])
	require.Equal(t, span.SpanContext().SpanID().String(), m["span_id"])

	require.Empty(t, logger.AttrsFromCtx(context.Background()))
}

func TestContextWith(t *testing.T) {
	var out bytes.Buffer
	logger.Init(zapConfig(&out))

	ctx := logger.ContextWith(context.Background(), slog.String("req_id", "r-1"))
	ctx = logger.ContextWith(ctx, slog.String("room", "AB12CD34"))
	require.Len(t, logger.AttrsFromCtx(ctx), 2)

	logger.FromCtx(ctx).Info("scoped")

	m := lastJSONLine(t, out.String())
	require.Equal(t, "scoped", m["msg"])
	require.Equal(t, "r-1", m["req_id"])
	require.Equal(t, "AB12CD34", m["room"])

	require.Equal(t, ctx, logger.ContextWith(ctx))
}
