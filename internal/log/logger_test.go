package log

import (
	"bytes"
	"testing"
)

func TestMultiWriterFansOut(t *testing.T) {
	var a, b bytes.Buffer
	mw := NewMultiWriter().Add(&a).Add(&b)
	n, err := mw.Write([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes written, got %d", n)
	}
	if a.String() != "hello" || b.String() != "hello" {
		t.Fatal("write not fanned out to all writers")
	}
}

func TestInitAndFields(t *testing.T) {
	Init(&LoggerConfig{Level: "debug"})
	logger := GetLogger()
	if logger == nil {
		t.Fatal("logger not initialized")
	}
	if !logger.IsDebugEnabled() {
		t.Error("debug level not applied")
	}
	child := logger.WithField("component", "test").WithFields(map[string]interface{}{"n": 1})
	if child == nil {
		t.Fatal("field chaining broken")
	}
}

func TestLevelFallback(t *testing.T) {
	// An unknown level must fall back to info rather than fail.
	err := initByConfig(&LoggerConfig{Level: "shouting"})
	if err != nil {
		t.Fatal(err)
	}
	if !logger.IsInfoEnabled() {
		t.Error("fallback level not info")
	}
}
