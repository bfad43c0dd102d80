package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"infergate/internal/backend"
)

func TestResolveDefaults(t *testing.T) {
	t.Setenv("INFERGATE_CONFIG", filepath.Join(t.TempDir(), "config"))

	r := resolve(zerolog.Nop(), "", backend.DefaultURL, "", 0)
	if r.model != "llama3" {
		t.Fatalf("model = %q", r.model)
	}
	if r.port != portLow {
		t.Fatalf("port = %d", r.port)
	}
	if r.persisted != 0 {
		t.Fatalf("persisted = %d", r.persisted)
	}
}

func TestResolveReadsAssignmentStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	content := "model_identifier=mistral\ngateway_port=8123\nbackend_url=http://127.0.0.1:9999\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INFERGATE_CONFIG", path)

	r := resolve(zerolog.Nop(), "", backend.DefaultURL, "", 0)
	if r.model != "mistral" {
		t.Fatalf("model = %q", r.model)
	}
	if r.port != 8123 || r.persisted != 8123 {
		t.Fatalf("port = %d persisted = %d", r.port, r.persisted)
	}
	if r.backendURL != "http://127.0.0.1:9999" {
		t.Fatalf("backend = %q", r.backendURL)
	}
}

func TestResolveFlagsWinOverStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("gateway_port=8123\nmodel_identifier=mistral\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INFERGATE_CONFIG", path)

	r := resolve(zerolog.Nop(), "", "http://10.0.0.2:11434", "phi3", 9000)
	if r.model != "phi3" {
		t.Fatalf("model = %q", r.model)
	}
	if r.port != 9000 {
		t.Fatalf("port = %d", r.port)
	}
	// the persisted value is still tracked so drift can be reported
	if r.persisted != 8123 {
		t.Fatalf("persisted = %d", r.persisted)
	}
	if r.backendURL != "http://10.0.0.2:11434" {
		t.Fatalf("backend = %q", r.backendURL)
	}
}

func TestResolveConfigFile(t *testing.T) {
	t.Setenv("INFERGATE_CONFIG", filepath.Join(t.TempDir(), "store"))
	cfgPath := filepath.Join(t.TempDir(), "infergate.yaml")
	yaml := "backend_url: http://127.0.0.1:7777\nmodel: gemma\nport: 8150\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	r := resolve(zerolog.Nop(), cfgPath, backend.DefaultURL, "", 0)
	if r.backendURL != "http://127.0.0.1:7777" || r.model != "gemma" || r.port != 8150 {
		t.Fatalf("resolved = %+v", r)
	}
}
