package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{" error ", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv(FormatEnv, "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, InfoLevel, false)

	l.Debug("hidden")
	assert.Zero(t, buf.Len())

	l.With("controller", "c1").Info("link opened", "devices", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "link opened", rec["msg"])
	assert.Equal(t, "c1", rec["controller"])
	assert.EqualValues(t, 2, rec["devices"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_SetLevelSharedWithChild(t *testing.T) {
	t.Setenv(FormatEnv, "")

	var buf bytes.Buffer
	l := NewSlogWriter(&buf, InfoLevel, false)
	child := l.With("k", "v")

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, child.Level())

	child.Debug("now visible")
	assert.Positive(t, buf.Len())

	l.SetLevel(ErrorLevel)
	assert.Equal(t, ErrorLevel, l.Level())
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "debug", DebugLevel.String())
	assert.Equal(t, "warn", WarnLevel.String())
	assert.Equal(t, "level(9)", Level(9).String())
}

func TestDefaultLogger_SetLevel(t *testing.T) {
	prev := GetLogger().Level()
	t.Cleanup(func() { SetLevel(prev) })

	child := With("controller", "c1")
	SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, GetLogger().Level())
	assert.Equal(t, WarnLevel, child.Level())
}

func TestMockLogger(t *testing.T) {
	m := NewMockLogger()
	m.On("With", "link", "emulator").Return(m)
	m.On("Warn", "flush timeout", []any{"remaining", 3}).Once()
	m.On("Level").Return(DebugLevel)

	l := m.With("link", "emulator")
	l.Warn("flush timeout", "remaining", 3)

	assert.Equal(t, DebugLevel, l.Level())
	m.AssertExpectations(t)
}
