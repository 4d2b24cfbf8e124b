package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildConfigByEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		env           string
		wantLevel     zapcore.Level
		wantCaller    bool
		wantCallerKey string
	}{
		{name: "development", env: "development", wantLevel: zap.DebugLevel, wantCallerKey: zapcore.OmitKey},
		{name: "debug", env: " DEBUG ", wantLevel: zap.DebugLevel, wantCaller: true, wantCallerKey: "caller"},
		{name: "production", env: "production", wantLevel: zap.InfoLevel, wantCallerKey: zapcore.OmitKey},
		{name: "fallback", env: "unknown", wantLevel: zap.InfoLevel, wantCallerKey: zapcore.OmitKey},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, withCaller := buildConfig(tc.env)

			require.Equal(t, tc.wantLevel, cfg.Level.Level())
			require.Equal(t, tc.wantCaller, withCaller)
			require.Equal(t, tc.wantCallerKey, cfg.EncoderConfig.CallerKey)
			require.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
			require.Equal(t, "msg", cfg.EncoderConfig.MessageKey)
			require.Equal(t, []string{"stderr"}, cfg.OutputPaths)
		})
	}
}

func TestIsIgnorableSyncError(t *testing.T) {
	t.Parallel()

	require.False(t, isIgnorableSyncError(nil))
	require.True(t, isIgnorableSyncError(errors.New("sync /dev/stderr: invalid argument")))
	require.True(t, isIgnorableSyncError(errors.New("sync /dev/stderr: inappropriate ioctl for device")))
	require.False(t, isIgnorableSyncError(errors.New("disk write failed")))
}

func TestAppendContextFields(t *testing.T) {
	t.Parallel()

	require.Equal(t, []any{"k", "v"}, appendContextFields(nil, "k", "v"))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSyncID(ctx, "sync-1")
	got := appendContextFields(ctx, "user_id", "u1")
	require.Equal(t, []any{"user_id", "u1", "request_id", "req-1", "sync_id", "sync-1"}, got)

	ctx = ContextWithSyncID(nil, "")
	require.Empty(t, appendContextFields(ctx))
}

func TestNewAndNopSatisfyInterface(t *testing.T) {
	t.Parallel()

	l, err := New("contacts", "production")
	require.NoError(t, err)

	var _ LoggerInterface = l
	var _ LoggerInterface = l.With("component", "test")
	var _ LoggerInterface = Nop()

	Nop().InfowCtx(context.Background(), "discarded", "k", "v")
	l.SafeSync()
}

func TestWithLevelOverridesProfile(t *testing.T) {
	t.Parallel()

	cfg, _ := buildConfig("debug")
	WithLevel(zapcore.WarnLevel)(&cfg)
	require.Equal(t, zapcore.WarnLevel, cfg.Level.Level())
	require.True(t, cfg.EncoderConfig.CallerKey == "caller")
}
