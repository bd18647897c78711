package config

import (
	"strings"
	"testing"
)

func TestDecode_minimal(t *testing.T) {
	data := []byte(`
repos:
  - repo: local
    hooks:
      - id: lint
        entry: golangci-lint run
        language: golang
        types: [go]
`)
	cfg, err := Decode("prek.yaml", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cfg.Repos) != 1 || len(cfg.Repos[0].Hooks) != 1 {
		t.Fatalf("unexpected shape: %+v", cfg)
	}
	hook := cfg.Repos[0].Hooks[0]
	if hook.ID != "lint" {
		t.Fatalf("ID = %q, want lint", hook.ID)
	}
	if !hook.PassesFilenames() {
		t.Fatalf("PassesFilenames() = false, want true by default")
	}
	if hook.Line() == 0 {
		t.Fatalf("Line() = 0, want source line recorded")
	}
}

func TestDecode_passFilenamesFalse(t *testing.T) {
	data := []byte(`
repos:
  - repo: local
    hooks:
      - id: no-files
        pass_filenames: false
`)
	cfg, err := Decode("prek.yaml", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Repos[0].Hooks[0].PassesFilenames() {
		t.Fatalf("PassesFilenames() = true, want false")
	}
}

func TestDecode_missingHookID(t *testing.T) {
	data := []byte(`
repos:
  - repo: local
    hooks:
      - entry: foo
`)
	_, err := Decode("prek.yaml", data)
	if err == nil {
		t.Fatal("expected error for missing hook id")
	}
	var cerr *Error
	if !asError(err, &cerr) {
		t.Fatalf("error is not *config.Error: %v", err)
	}
	if !strings.Contains(cerr.Msg, "id") {
		t.Fatalf("error message %q does not mention id", cerr.Msg)
	}
}

func TestDecode_missingRepoField(t *testing.T) {
	data := []byte(`
repos:
  - hooks:
      - id: x
`)
	_, err := Decode("prek.yaml", data)
	if err == nil {
		t.Fatal("expected error for missing repo field")
	}
}

func TestDecode_malformedYAML(t *testing.T) {
	_, err := Decode("prek.yaml", []byte("repos: [this is not valid: :::"))
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func asError(err error, target **Error) bool {
	cerr, ok := err.(*Error)
	if ok {
		*target = cerr
	}
	return ok
}
