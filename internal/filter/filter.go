// Package filter implements the File Filter (spec.md §4.3, component C2):
// applying a hook's files_re/exclude_re/types/types_or/exclude_types against
// a candidate path set, and the project-level files/exclude outer filter
// uses the same Apply. The project claim rule of §4.3 lives in
// internal/workspace (ClaimingProjects).
//
// Regular expressions are compiled with dlclark/regexp2 rather than the
// stdlib regexp package. Legacy pre-commit configs lean on Python `re`
// syntax — lookaround and backreferences in particular — that Go's RE2
// engine rejects outright; regexp2 accepts that syntax (at the cost of
// potential backtracking, acceptable here since patterns are user-authored
// and compiled once per hook, not per file). Grounded on the real Go
// rendition of this tool (blairham-go-pre-commit go.mod) which carries the
// same dependency for the same reason.
package filter

import (
	"fmt"
	"path"
	"sync"

	"github.com/dlclark/regexp2"

	"github.com/hookwave/hookwave/internal/classify"
)

// Spec is the subset of a hook's (or project's) filtering configuration the
// filter package needs, decoupled from internal/config so this package has
// no dependency on the YAML shape.
type Spec struct {
	FilesRe      string
	ExcludeRe    string
	Types        []string
	TypesOr      []string
	ExcludeTypes []string
}

// CompiledSet caches compiled regexes for the duration of one run, keyed by
// pattern text. spec.md §9 is explicit: "Do not pre-compile regexes
// globally; compile per hook and cache per run" — one CompiledSet is
// created per orchestrator run and threaded through, the same shape as
// classify.Cache.
type CompiledSet struct {
	mu    sync.Mutex
	cache map[string]*regexp2.Regexp
}

// NewCompiledSet returns an empty, run-scoped regex cache.
func NewCompiledSet() *CompiledSet {
	return &CompiledSet{cache: make(map[string]*regexp2.Regexp)}
}

func (c *CompiledSet) compile(pattern string) (*regexp2.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[pattern]; ok {
		return re, nil
	}
	// Most hook configs carry plain RE2-compatible patterns, but
	// pre-commit-style configs sometimes use Python `re` syntax (e.g.
	// lookaround, backreferences) that regexp2.RE2 rejects just like
	// stdlib regexp would. Compile in full regexp2 mode so those patterns
	// actually load; this is the whole reason regexp2 was chosen over
	// regexp in the first place.
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	c.cache[pattern] = re
	return re, nil
}

// Validate compiles both regexes in spec without matching anything,
// surfacing configuration errors (spec.md §7.1) before any hook runs.
func Validate(compiled *CompiledSet, spec Spec) error {
	if _, err := compiled.compile(spec.FilesRe); err != nil {
		return err
	}
	if _, err := compiled.compile(spec.ExcludeRe); err != nil {
		return err
	}
	return nil
}

// TaggedPath pairs a repository-relative path with its pre-computed tag
// set, so Apply never has to reclassify the same path for every hook.
type TaggedPath struct {
	Path string
	Tags map[classify.Tag]struct{}
}

// Apply returns the subset of paths matching spec, per spec.md §4.3:
//
//   - files_re matches (or is absent) AND exclude_re does not match (or is
//     absent);
//   - the tag set is a superset of Types, has non-empty intersection with
//     TypesOr (if present), and empty intersection with ExcludeTypes.
//
// Regexes are unanchored matches against the whole repository-relative
// path with '/' as separator on all platforms (spec.md §4.3), so paths
// must already be normalized to forward slashes by the caller.
func Apply(compiled *CompiledSet, spec Spec, paths []TaggedPath) ([]string, error) {
	filesRe, err := compiled.compile(spec.FilesRe)
	if err != nil {
		return nil, err
	}
	excludeRe, err := compiled.compile(spec.ExcludeRe)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, p := range paths {
		matched, err := matchesRegexes(filesRe, excludeRe, p.Path)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		if !matchesTypes(spec, p.Tags) {
			continue
		}
		out = append(out, p.Path)
	}
	return out, nil
}

func matchesRegexes(filesRe, excludeRe *regexp2.Regexp, p string) (bool, error) {
	if filesRe != nil {
		ok, err := filesRe.MatchString(p)
		if err != nil {
			return false, fmt.Errorf("matching files regex against %q: %w", p, err)
		}
		if !ok {
			return false, nil
		}
	}
	if excludeRe != nil {
		ok, err := excludeRe.MatchString(p)
		if err != nil {
			return false, fmt.Errorf("matching exclude regex against %q: %w", p, err)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

func matchesTypes(spec Spec, tags map[classify.Tag]struct{}) bool {
	for _, t := range spec.Types {
		if _, ok := tags[classify.Tag(t)]; !ok {
			return false
		}
	}
	if len(spec.TypesOr) > 0 {
		any := false
		for _, t := range spec.TypesOr {
			if _, ok := tags[classify.Tag(t)]; ok {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	for _, t := range spec.ExcludeTypes {
		if _, ok := tags[classify.Tag(t)]; ok {
			return false
		}
	}
	return true
}

// NormalizePath converts an OS path to the repository-relative, forward-
// slash form spec.md §4.3 requires regexes to match against.
func NormalizePath(p string) string {
	return path.Clean(filepathToSlash(p))
}

func filepathToSlash(p string) string {
	out := make([]byte, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '\\' {
			out[i] = '/'
		} else {
			out[i] = p[i]
		}
	}
	return string(out)
}
