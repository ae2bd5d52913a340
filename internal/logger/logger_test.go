package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	jwtLike := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig"

	out := sanitizeKVs([]interface{}{
		"product_id", "p1",
		"api_key", "sk-123",
		"Password", "hunter2",
		"header", jwtLike,
		"dangling",
	})

	require.Len(t, out, 9)
	assert.Equal(t, "p1", out[1])
	assert.Equal(t, redacted, out[3])
	assert.Equal(t, redacted, out[5])
	assert.Equal(t, redacted, out[7])
	assert.Equal(t, "dangling", out[8])
}

func TestWithRedactsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("component", "catalog", "access_token", "abc").Info("logged in", "email", "a@b.c")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "catalog", fields["component"])
	assert.Equal(t, redacted, fields["access_token"])
	assert.Equal(t, "a@b.c", fields["email"])
}

func TestNew(t *testing.T) {
	l, err := New("production")
	require.NoError(t, err)
	assert.NotNil(t, l.SugaredLogger)

	assert.NotPanics(t, func() { Nop().Info("discarded", "k", "v") })
}
