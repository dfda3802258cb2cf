package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithID_and_ID_Roundtrip(t *testing.T) {
	ctx := WithID(context.Background(), OriginCommand, "1234567890")

	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "1234567890", id)
	assert.Equal(t, OriginCommand, Origin(ctx))
}

func TestID_Missing(t *testing.T) {
	id, ok := ID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Empty(t, Origin(context.Background()))
}

func TestID_EmptyString(t *testing.T) {
	ctx := WithID(context.Background(), OriginStream, "")
	id, ok := ID(ctx)
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestHandler_AddsCorrelationAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx := WithID(context.Background(), OriginStream, "1790000000000000001")
	logger.InfoContext(ctx, "Notification posted", "channel_id", "c1")

	output := buf.String()
	assert.Contains(t, output, "correlation_id=1790000000000000001")
	assert.Contains(t, output, "origin=stream")
	assert.Contains(t, output, "channel_id=c1")
}

func TestHandler_NoCorrelationID_WhenMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "plain")

	assert.NotContains(t, buf.String(), "correlation_id")
	assert.NotContains(t, buf.String(), "origin=")
}

func TestHandler_WithAttrsKeepsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil))).With("component", "relay")

	logger.InfoContext(WithID(context.Background(), OriginCommand, "m1"), "Following author")

	assert.Contains(t, buf.String(), "component=relay")
	assert.Contains(t, buf.String(), "correlation_id=m1")
}
