package filter

import (
	"testing"

	"github.com/hookwave/hookwave/internal/classify"
)

func tagged(p string, tags ...classify.Tag) TaggedPath {
	m := make(map[classify.Tag]struct{}, len(tags))
	for _, t := range tags {
		m[t] = struct{}{}
	}
	return TaggedPath{Path: p, Tags: m}
}

func TestApply_filesAndExclude(t *testing.T) {
	cs := NewCompiledSet()
	spec := Spec{FilesRe: `\.go$`, ExcludeRe: `_test\.go$`}
	paths := []TaggedPath{
		tagged("main.go"),
		tagged("main_test.go"),
		tagged("README.md"),
	}
	got, err := Apply(cs, spec, paths)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 1 || got[0] != "main.go" {
		t.Fatalf("got %v, want [main.go]", got)
	}
}

func TestApply_types(t *testing.T) {
	cs := NewCompiledSet()
	spec := Spec{Types: []string{"text", "go"}}
	paths := []TaggedPath{
		tagged("a.go", "text", "go"),
		tagged("b.go", "go"), // missing "text"
		tagged("c.py", "text", "python"),
	}
	got, err := Apply(cs, spec, paths)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 1 || got[0] != "a.go" {
		t.Fatalf("got %v, want [a.go]", got)
	}
}

func TestApply_typesOr(t *testing.T) {
	cs := NewCompiledSet()
	spec := Spec{TypesOr: []string{"go", "python"}}
	paths := []TaggedPath{
		tagged("a.go", "go"),
		tagged("b.py", "python"),
		tagged("c.rs", "rust"),
	}
	got, err := Apply(cs, spec, paths)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 matches", got)
	}
}

func TestApply_excludeTypes(t *testing.T) {
	cs := NewCompiledSet()
	spec := Spec{ExcludeTypes: []string{"binary"}}
	paths := []TaggedPath{
		tagged("a.go", "text", "go"),
		tagged("bin", "binary"),
	}
	got, err := Apply(cs, spec, paths)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 1 || got[0] != "a.go" {
		t.Fatalf("got %v, want [a.go]", got)
	}
}

func TestApply_noPatternsMatchesAll(t *testing.T) {
	cs := NewCompiledSet()
	got, err := Apply(cs, Spec{}, []TaggedPath{tagged("x"), tagged("y")})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %v, want both paths", got)
	}
}

func TestApply_deterministic(t *testing.T) {
	cs := NewCompiledSet()
	spec := Spec{FilesRe: `\.go$`}
	paths := []TaggedPath{tagged("a.go"), tagged("b.go"), tagged("c.txt")}
	a, err := Apply(cs, spec, paths)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Apply(cs, spec, paths)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("non-deterministic: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic: %v vs %v", a, b)
		}
	}
}

func TestValidate_invalidRegexSharesGroupingSemantics(t *testing.T) {
	cs := NewCompiledSet()
	// Unbalanced group is invalid even under regexp2's looser grammar.
	err := Validate(cs, Spec{FilesRe: `(unclosed`})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestCompiledSet_cachesCompilation(t *testing.T) {
	cs := NewCompiledSet()
	re1, err := cs.compile(`\.go$`)
	if err != nil {
		t.Fatal(err)
	}
	re2, err := cs.compile(`\.go$`)
	if err != nil {
		t.Fatal(err)
	}
	if re1 != re2 {
		t.Fatal("expected same compiled regex instance from cache")
	}
}
