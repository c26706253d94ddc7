package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()

	for _, exporter := range []string{"", "none", "NONE"} {
		tel, err := Setup(context.Background(), Options{Exporter: exporter})
		require.NoError(t, err)
		assert.False(t, tel.Enabled())

		_, span := tel.Tracer("test").Start(context.Background(), "noop")
		assert.False(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, tel.Shutdown(context.Background()))
	}

	var nilTel *Telemetry
	assert.NotNil(t, nilTel.Tracer("test"))
	assert.NoError(t, nilTel.Shutdown(context.Background()))
}

func TestSetup_UnknownExporter(t *testing.T) {
	t.Parallel()

	_, err := Setup(context.Background(), Options{Exporter: "zipkin"})
	assert.ErrorContains(t, err, `unknown trace exporter "zipkin"`)
}

// Setup installs a global provider, so exporting tests do not run in parallel.
func TestSetup_StdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer

	tel, err := Setup(context.Background(), Options{
		Exporter:    ExporterStdout,
		SampleRatio: 1,
		RunID:       "run-1",
		Writer:      &buf,
	})
	require.NoError(t, err)
	require.True(t, tel.Enabled())

	_, span := tel.Tracer("deploylog/test").Start(context.Background(), "aggregate")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "aggregate"`)
	assert.Contains(t, buf.String(), "run-1")
}

func TestSetup_ZeroRatioSamplesNothing(t *testing.T) {
	var buf bytes.Buffer

	tel, err := Setup(context.Background(), Options{Exporter: ExporterStdout, SampleRatio: 0, Writer: &buf})
	require.NoError(t, err)

	_, span := tel.Tracer("deploylog/test").Start(context.Background(), "aggregate")
	span.End()

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.Empty(t, buf.String())
}

func TestSetup_OTLP(t *testing.T) {
	tests := map[string]string{
		"host and port": "localhost:4318",
		"full url":      "http://localhost:4318/v1/traces",
		"default":       "",
	}

	for name, endpoint := range tests {
		t.Run(name, func(t *testing.T) {
			tel, err := Setup(context.Background(), Options{Exporter: ExporterOTLP, Endpoint: endpoint, SampleRatio: 1})
			require.NoError(t, err)
			assert.True(t, tel.Enabled())
			assert.NoError(t, tel.Shutdown(context.Background()))
		})
	}
}

func TestClampRatio(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 0.5, clampRatio(0.5))
	assert.Equal(t, 1.0, clampRatio(3))
}
