package logger

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseZapLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseZapLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, parseZapLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseZapLevel("verbose"))
}

func TestToHlogLevel(t *testing.T) {
	assert.Equal(t, hlog.LevelDebug, toHlogLevel(zapcore.DebugLevel))
	assert.Equal(t, hlog.LevelInfo, toHlogLevel(zapcore.InfoLevel))
	assert.Equal(t, hlog.LevelError, toHlogLevel(zapcore.ErrorLevel))
}

func TestNamedWithoutInit(t *testing.T) {
	Logger = nil
	l := Named("scheduler")
	assert.NotNil(t, l)
	l.Info("no-op")
}
