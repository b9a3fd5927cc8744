package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("hello", "key", 1)
	logger.Sublogger("child").Warnf("value %d", 2)

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entries := logs.All()
	test.That(t, entries[0].Message, test.ShouldEqual, "hello")
	test.That(t, entries[0].ContextMap()["key"], test.ShouldEqual, int64(1))
	test.That(t, entries[1].LoggerName, test.ShouldEqual, "child")
	test.That(t, entries[1].Level, test.ShouldEqual, zapcore.WarnLevel)
}

func TestSetLevel(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(zapcore.WarnLevel)
	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Error("kept")
	test.That(t, logs.Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].Message, test.ShouldEqual, "kept")
}

func TestGlobal(t *testing.T) {
	prev := Global()
	defer ReplaceGlobal(prev)

	blank := NewBlankLogger("blank")
	ReplaceGlobal(blank)
	test.That(t, Global(), test.ShouldEqual, blank)
}
