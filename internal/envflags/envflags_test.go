package envflags

import (
	"os"
	"testing"
)

func TestNoConcurrency_prekTakesPrecedence(t *testing.T) {
	t.Setenv("PREK_NO_CONCURRENCY", "1")
	t.Setenv("PRE_COMMIT_NO_CONCURRENCY", "0")
	if !NoConcurrency() {
		t.Fatal("expected true")
	}
}

func TestNoConcurrency_fallsBackToLegacyVar(t *testing.T) {
	os.Unsetenv("PREK_NO_CONCURRENCY")
	t.Setenv("PRE_COMMIT_NO_CONCURRENCY", "true")
	if !NoConcurrency() {
		t.Fatal("expected true via legacy var")
	}
}

func TestNoConcurrency_unsetIsFalse(t *testing.T) {
	os.Unsetenv("PREK_NO_CONCURRENCY")
	os.Unsetenv("PRE_COMMIT_NO_CONCURRENCY")
	if NoConcurrency() {
		t.Fatal("expected false")
	}
}

func TestAllowNoConfig(t *testing.T) {
	t.Setenv("PREK_ALLOW_NO_CONFIG", "yes")
	if !AllowNoConfig() {
		t.Fatal("expected true")
	}
}

func TestPREKColor(t *testing.T) {
	t.Setenv("PREK_COLOR", "never")
	if PREKColor() != ColorNever {
		t.Fatal("expected ColorNever")
	}
	t.Setenv("PREK_COLOR", "always")
	if PREKColor() != ColorAlways {
		t.Fatal("expected ColorAlways")
	}
	os.Unsetenv("PREK_COLOR")
	if PREKColor() != ColorAuto {
		t.Fatal("expected ColorAuto by default")
	}
}
