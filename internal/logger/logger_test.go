// Package logger tests cover the guarded global logger instance
package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func resetGlobal() {
	globalMu.Lock()
	globalLogger = nil
	globalMu.Unlock()
}

func TestGetGlobalLoggerInitializesOnce(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	const callers = 16
	loggers := make([]*Logger, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			loggers[i] = GetGlobalLogger()
		}(i)
	}
	wg.Wait()

	if loggers[0] == nil {
		t.Fatal("GetGlobalLogger returned nil")
	}
	for i := 1; i < callers; i++ {
		if loggers[i] != loggers[0] {
			t.Errorf("Caller %d got a different logger instance", i)
		}
	}
}

func TestInitGlobalLoggerReplaces(t *testing.T) {
	resetGlobal()
	defer resetGlobal()

	first := GetGlobalLogger()
	InitGlobalLogger(Config{Level: "debug"})
	second := GetGlobalLogger()
	if first == second {
		t.Error("InitGlobalLogger should replace the lazy default")
	}
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "info", Output: &buf})
	l.Info("test message").Str("key", "value").Send()

	out := buf.String()
	if !strings.Contains(out, `"service":"objectstore"`) {
		t.Errorf("Expected service field, got %s", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("Expected custom field, got %s", out)
	}
}
