package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledProviderIsUsable(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// All helpers must be safe no-ops without a collector.
	spanCtx, span := p.StartSpan(ctx, "engine.evaluate_request")
	assert.NotNil(t, spanCtx)
	span.End()

	p.RecordEvaluation(ctx, "GRANT", 5*time.Millisecond)
	p.RecordActionError(ctx, "create_ticket")

	assert.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "arbiter", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Enabled)
}
