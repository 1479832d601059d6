package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  gemini  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}

	if fields[0].Key != "provider" || fields[0].String != "gemini" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}

	empty := StringFields()
	if len(empty) != 0 {
		t.Fatalf("expected empty fields, got %d", len(empty))
	}
}

func TestWithFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	enriched := WithFields(logger, zap.String("foo", "bar"))
	enriched.Info("test log")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	if entries[0].ContextMap()["foo"] != "bar" {
		t.Fatalf("expected foo field on entry, got %+v", entries[0].ContextMap())
	}

	if WithFields(nil) == nil {
		t.Fatalf("expected non-nil logger for nil input")
	}
}

func TestClassifierFields(t *testing.T) {
	fields := ClassifierFields("gemini", "")
	if len(fields) != 1 {
		t.Fatalf("expected model to be omitted, got %d fields", len(fields))
	}
	if fields[0].Key != FieldProvider {
		t.Fatalf("unexpected field key: %s", fields[0].Key)
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("  abcdef  ", 3); got != "abc..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := TruncateForLog("short", 10); got != "short" {
		t.Fatalf("expected untouched string, got %q", got)
	}
	if got := TruncateForLog("anything", 0); got != "" {
		t.Fatalf("expected empty string for zero limit, got %q", got)
	}
}
