package colorcue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/colorcue/colorcue/pkg/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "colorcue.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
vocabulary:
  labels: [red, blue]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.StageBuffer != 128 || cfg.Pipeline.FairnessRatio != 3 {
		t.Fatalf("pipeline defaults not applied: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.Backpressure != pipeline.BackpressureDrop {
		t.Fatalf("expected drop backpressure default")
	}
	if cfg.Extract.Role != "remote-agent" || cfg.Extract.MaxClosedUtterances != 1024 {
		t.Fatalf("extract defaults not applied: %+v", cfg.Extract)
	}
	if cfg.RPC.Concurrency != 4 || !cfg.RPC.SerializeBySession {
		t.Fatalf("rpc defaults not applied: %+v", cfg.RPC)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("expected redaction on by default")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("COLORCUE_TEST_URL", "ws://example.test/feed")
	path := writeConfig(t, `
transports:
  provider: wsjson
  settings:
    url: ${COLORCUE_TEST_URL}
vocabulary:
  labels: [red]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Transports.Settings["url"]; got != "ws://example.test/feed" {
		t.Fatalf("url = %v", got)
	}
}

func TestLoadConfigRejectsMissingProvider(t *testing.T) {
	path := writeConfig(t, `
vocabulary:
  labels: [red]
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadConfigRejectsEmptyVocabulary(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadConfigBackpressureWait(t *testing.T) {
	path := writeConfig(t, `
transports:
  provider: mock
vocabulary:
  labels: [red]
pipeline:
  backpressure: wait
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Backpressure != pipeline.BackpressureWait {
		t.Fatalf("expected wait backpressure")
	}
}

func TestBuildTransportValidatesSettings(t *testing.T) {
	if _, err := BuildTransport(TransportsConfig{Provider: "wsjson", Settings: map[string]any{}}); err == nil {
		t.Fatalf("expected missing url error")
	}
	if _, err := BuildTransport(TransportsConfig{Provider: "wsjson", Settings: map[string]any{
		"url":   "ws://localhost:9000/feed",
		"bogus": true,
	}}); err == nil {
		t.Fatalf("expected unknown key error")
	}
	tr, err := BuildTransport(TransportsConfig{Provider: "mock"})
	if err != nil || tr.Name() != "mock" {
		t.Fatalf("mock transport: %v", err)
	}
	if _, err := BuildTransport(TransportsConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
