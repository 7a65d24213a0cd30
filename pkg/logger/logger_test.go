package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "payment-service", "warn", false)

	log.Info().Msg("gizli kalmalı")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	log.Warn().Str("provider", "paytr").Msg("hash uyuşmadı")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["service"] != "payment-service" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["provider"] != "paytr" {
		t.Errorf("provider = %v", entry["provider"])
	}
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "x", "yüksek", false)
	log.Info().Msg("ok")
	if buf.Len() == 0 {
		t.Error("info should be logged when level is invalid")
	}
}
