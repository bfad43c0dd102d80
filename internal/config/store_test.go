package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenStore_MissingFileIsEmpty(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "config"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.Get(KeyModel); ok {
		t.Fatalf("expected empty store")
	}
}

func TestStore_SetAppendsAndRereads(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "config")
	s, err := OpenStore(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(KeyModel, "llama3.2:3b"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(KeyGatewayPort, "8765"); err != nil {
		t.Fatalf("set: %v", err)
	}
	// reconfiguration appends; last occurrence wins
	if err := s.Set(KeyGatewayPort, "8766"); err != nil {
		t.Fatalf("set: %v", err)
	}

	s2, err := OpenStore(p)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, _ := s2.Get(KeyModel); v != "llama3.2:3b" {
		t.Fatalf("model=%q", v)
	}
	if n, ok := s2.GetInt(KeyGatewayPort); !ok || n != 8766 {
		t.Fatalf("port=%d ok=%v", n, ok)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := strings.Count(string(b), KeyGatewayPort+"="); got != 2 {
		t.Fatalf("expected 2 appended port lines, got %d in %q", got, b)
	}
}

func TestStore_IgnoresCommentsAndBlank(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config")
	content := "# written by initial setup\n\nmodel_identifier=m1\n  gateway_port = 9000 \nnot-a-pair\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := OpenStore(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if v, _ := s.Get(KeyModel); v != "m1" {
		t.Fatalf("model=%q", v)
	}
	if n, ok := s.GetInt(KeyGatewayPort); !ok || n != 9000 {
		t.Fatalf("port=%d ok=%v", n, ok)
	}
	if len(s.Keys()) != 2 {
		t.Fatalf("keys=%v", s.Keys())
	}
}

func TestStore_RejectsInvalidEntries(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "config"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set("bad=key", "v"); err == nil {
		t.Fatalf("expected error for '=' in key")
	}
	if err := s.Set("k", "multi\nline"); err == nil {
		t.Fatalf("expected error for newline in value")
	}
}

func TestStorePath_EnvOverride(t *testing.T) {
	t.Setenv(EnvStorePath, "/tmp/custom-infergate-config")
	p, err := StorePath()
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if p != "/tmp/custom-infergate-config" {
		t.Fatalf("path=%q", p)
	}
}
