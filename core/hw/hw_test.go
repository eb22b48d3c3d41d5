package hw

import (
	"os"
	"path/filepath"
	"testing"

	"swsb/core/gir"
	IT "swsb/core/gir/instrkind"
	P "swsb/core/gir/pipe"
	SF "swsb/core/gir/sfid"
)

func TestDefault(t *testing.T) {
	m := Default()
	if err := m.Validate(); err != nil {
		t.Fatalf("expected default model to be valid: %v", err)
	}
	if m.NumBuckets() != m.NumGRF+m.NumACC+m.NumFlag {
		t.Fatalf("unexpected bucket count %v", m.NumBuckets())
	}
	if m.MaxDist(P.Long) != m.MaxLongDist || m.MaxDist(P.Send) != 0 {
		t.Fatalf("unexpected pipe distances")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	text := "name: small\ntokens: 8\nlatency:\n  memory: 80\n"
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "small" || m.TotalTokens != 8 || m.Latency.Memory != 80 {
		t.Fatalf("expected fields from the file, got %+v", m)
	}
	if m.GRFSize != 32 || m.Latency.SLM != 25 {
		t.Fatalf("expected missing fields to keep their default, got %+v", m)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte("tokens: 64\n"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected 64 tokens to be rejected")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SWSB_TOKENS", "4")
	t.Setenv("SWSB_L3", "true")
	m := Default()
	m.ApplyEnv()
	if m.TotalTokens != 4 || !m.L3Hit {
		t.Fatalf("expected environment overrides, got %v tokens, l3 %v", m.TotalTokens, m.L3Hit)
	}
	send := &gir.Instr{T: IT.Send, SFID: SF.UGM}
	if m.WriteLatency(send) != m.Latency.MemoryL3 {
		t.Fatalf("expected L3 latency, got %v", m.WriteLatency(send))
	}
}

func TestWriteLatency(t *testing.T) {
	m := Default()
	tests := []struct {
		instr    *gir.Instr
		expected int
	}{
		{&gir.Instr{T: IT.Send, SFID: SF.SLM}, m.Latency.SLM},
		{&gir.Instr{T: IT.Send, SFID: SF.Sampler}, m.Latency.Sampler},
		{&gir.Instr{T: IT.Math}, m.Latency.Math},
		{&gir.Instr{T: IT.Dpas}, m.Latency.DpasWrite},
		{&gir.Instr{T: IT.Send, SFID: SF.UGM, Latency: 7}, 7},
		{&gir.Instr{T: IT.Add}, 0},
	}
	for i, test := range tests {
		if got := m.WriteLatency(test.instr); got != test.expected {
			t.Fatalf("case %v: expected %v, got %v", i, test.expected, got)
		}
	}
}
