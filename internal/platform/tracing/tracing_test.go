package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Run("enabled exports spans on shutdown", func(t *testing.T) {
		var buf bytes.Buffer
		p, err := Setup(true, &buf)
		require.NoError(t, err)

		_, span := p.Tracer("test").Start(context.Background(), "gateway.Validate")
		span.End()
		require.NoError(t, p.Shutdown(context.Background()))

		assert.Contains(t, buf.String(), "gateway.Validate")
	})

	t.Run("disabled is a no-op", func(t *testing.T) {
		p, err := Setup(false, nil)
		require.NoError(t, err)
		_, span := p.Tracer("test").Start(context.Background(), "noop")
		assert.False(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, p.Shutdown(context.Background()))
	})
}
