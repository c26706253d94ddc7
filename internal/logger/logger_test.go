package logger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts    Options
		wantErr string
	}{
		"console info":   {opts: Options{Level: "info", Format: "console"}},
		"json debug":     {opts: Options{Level: "DEBUG", Format: "json"}},
		"default format": {opts: Options{Level: "warn"}},
		"bad level":      {opts: Options{Level: "loud"}, wantErr: "parsing log level"},
		"bad format":     {opts: Options{Level: "info", Format: "xml"}, wantErr: "unknown log format"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			l, err := New(tt.opts)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l.SugaredLogger)
		})
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With("gateway", "jira")

	l.Info("request", "token", "s3cr3t", "Authorization", "Bearer x", "url", "https://jira")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["token"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "https://jira", fields["url"])
	assert.Equal(t, "jira", fields["gateway"])
}

func TestLogger_Levels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	l := FromZap(zap.New(core)).Named("engine")

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, "engine", logs.All()[0].LoggerName)
}

func TestNopAndRunID(t *testing.T) {
	t.Parallel()

	Nop().Info("discarded", "k", "v")

	id := NewRunID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewRunID())
}
