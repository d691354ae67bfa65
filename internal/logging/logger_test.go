package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewBuildsBothModes(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		logger, err := New(development)
		if err != nil {
			t.Fatalf("New(%v) error = %v", development, err)
		}
		if logger == nil {
			t.Fatalf("New(%v) returned nil logger", development)
		}
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func TestNewReturnsDistinctLoggers(t *testing.T) {
	t.Parallel()

	dev, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	prod, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if dev == prod {
		t.Fatal("expected distinct logger instances")
	}
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("development logger must enable debug level")
	}
	if prod.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("production logger must not enable debug level")
	}
}
