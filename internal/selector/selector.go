// Package selector implements the Selector Engine (spec.md §4.4,
// component C4): resolving CLI include/skip tokens against the set of
// known (project, hook) pairs.
package selector

import (
	"fmt"
	"os"
	"strings"

	"github.com/hookwave/hookwave/internal/hooklog"
)

var log = hooklog.NewWithCategory(true, "selector")

// Candidate is a single (project, hook) pair the selector can match
// against, identified by the project's normalized path relative to the
// workspace root ("" for the workspace root project itself) and the
// hook's canonical id.
type Candidate struct {
	ProjectPath string
	HookID      string
}

type tokenKind int

const (
	kindBare tokenKind = iota
	kindHookOnly
	kindProjectOnly
	kindCompound
)

type token struct {
	kind        tokenKind
	projectPath string
	hookID      string
	raw         string
}

// parseToken parses one selector token per spec.md §4.4's grammar:
//
//	token := project_path [":" hook_id] | ":" hook_id | "./" project_path | hook_id
func parseToken(raw string) (token, error) {
	if raw == "" {
		return token{}, fmt.Errorf("empty selector token")
	}

	if strings.HasPrefix(raw, ":") {
		hookID := raw[1:]
		if hookID == "" {
			return token{}, fmt.Errorf("selector token %q: empty hook id after ':'", raw)
		}
		return token{kind: kindHookOnly, hookID: hookID, raw: raw}, nil
	}

	if strings.HasPrefix(raw, "./") {
		path := normalizeProjectPath(raw[len("./"):])
		return token{kind: kindProjectOnly, projectPath: path, raw: raw}, nil
	}

	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		path := normalizeProjectPath(raw[:idx])
		hookID := raw[idx+1:]
		if hookID == "" {
			return token{}, fmt.Errorf("selector token %q: empty hook id after ':'", raw)
		}
		return token{kind: kindCompound, projectPath: path, hookID: hookID, raw: raw}, nil
	}

	return token{kind: kindBare, hookID: raw, projectPath: normalizeProjectPath(raw), raw: raw}, nil
}

// normalizeProjectPath strips a trailing slash and converts to the
// forward-slash, leading-slash-free form project paths are compared in.
func normalizeProjectPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// isProjectPathMatch reports whether candidatePath is prefix is rooted at
// selector path, per spec.md §4.4 rule 6: "Project matching is
// prefix-based on normalized paths; selecting a project implicitly
// selects all its descendants." An empty selector path (the workspace
// root) matches every project.
func isProjectPathMatch(selectorPath, candidatePath string) bool {
	if selectorPath == "" {
		return true
	}
	if candidatePath == selectorPath {
		return true
	}
	return strings.HasPrefix(candidatePath, selectorPath+"/")
}

// match reports whether candidate is selected by t, per spec.md §4.4
// rules 1-5. knownHookIDs is the set of every hook id across all
// projects, needed to resolve rule 3's bare-token ambiguity.
func (t token) match(c Candidate, knownHookIDs map[string]struct{}) bool {
	switch t.kind {
	case kindHookOnly:
		return c.HookID == t.hookID
	case kindProjectOnly:
		return isProjectPathMatch(t.projectPath, c.ProjectPath)
	case kindCompound:
		return isProjectPathMatch(t.projectPath, c.ProjectPath) && c.HookID == t.hookID
	case kindBare:
		if _, ok := knownHookIDs[t.hookID]; ok {
			return c.HookID == t.hookID
		}
		return isProjectPathMatch(t.projectPath, c.ProjectPath)
	default:
		return false
	}
}

// KnownHookIDs returns the set of hook ids appearing anywhere in
// candidates. spec.md §4.4 rule 3 resolves a bare token's hook-vs-project
// ambiguity against this set computed "across all projects" — callers
// working with a single project's candidate subset must still pass in a
// workspace-wide set here, not one derived from that subset alone.
func KnownHookIDs(candidates []Candidate) map[string]struct{} {
	ids := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		ids[c.HookID] = struct{}{}
	}
	return ids
}

// UnknownTokenError reports an include token that matched no candidate
// anywhere in the workspace, per spec.md §7.2: "selector refers to an
// unknown project/hook: fail the run before scheduling; report exactly
// which token failed."
type UnknownTokenError struct {
	Token string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("selector: %q does not match any known project or hook", e.Token)
}

// ValidateTokens fails with an *UnknownTokenError for the first include
// token that matches nothing in allCandidates, the full workspace-wide
// candidate set. Skip tokens are intentionally not validated: a skip
// token matching nothing is a harmless no-op, not a configuration error.
func ValidateTokens(include []string, allCandidates []Candidate) error {
	knownHookIDs := KnownHookIDs(allCandidates)
	tokens, err := parseTokens(include)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		matched := false
		for _, c := range allCandidates {
			if t.match(c, knownHookIDs) {
				matched = true
				break
			}
		}
		if !matched {
			return &UnknownTokenError{Token: t.raw}
		}
	}
	return nil
}

// Resolve computes the selected subset of candidates: the union of every
// include token's matches (or all candidates, if include is empty), minus
// anything matched by a skip token, per spec.md §4.4. knownHookIDs (rule
// 3's ambiguity set) is derived from candidates alone, so this is only
// correct when candidates already spans the whole workspace; a caller
// resolving one project's candidate subset against a multi-project
// workspace must use ResolveWithKnownHookIDs instead.
func Resolve(include, skip []string, candidates []Candidate) ([]Candidate, error) {
	return ResolveWithKnownHookIDs(include, skip, candidates, KnownHookIDs(candidates))
}

// ResolveWithKnownHookIDs is Resolve with an externally supplied
// knownHookIDs set, letting a caller resolve a per-project candidate
// subset while still honoring spec.md §4.4 rule 3's workspace-wide
// hook-id ambiguity resolution.
func ResolveWithKnownHookIDs(include, skip []string, candidates []Candidate, knownHookIDs map[string]struct{}) ([]Candidate, error) {
	includeTokens, err := parseTokens(include)
	if err != nil {
		return nil, err
	}
	skipTokens, err := parseTokens(skip)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, c := range candidates {
		if !matchesAny(includeTokens, c, knownHookIDs) {
			continue
		}
		if len(skipTokens) > 0 && matchesAny(skipTokens, c, knownHookIDs) {
			continue
		}
		out = append(out, c)
	}
	log.Debug("resolved selector tokens", "candidates", len(candidates), "selected", len(out))
	return out, nil
}

func parseTokens(raws []string) ([]token, error) {
	tokens := make([]token, 0, len(raws))
	for _, r := range raws {
		t, err := parseToken(r)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func matchesAny(tokens []token, c Candidate, knownHookIDs map[string]struct{}) bool {
	if len(tokens) == 0 {
		return true
	}
	for _, t := range tokens {
		if t.match(c, knownHookIDs) {
			return true
		}
	}
	return false
}

// EnvSkipTokens returns additional skip tokens from PREK_SKIP, falling
// back to SKIP if PREK_SKIP is unset, per spec.md §4.4's "The environment
// variables PREK_SKIP and SKIP (fallback) supply additional comma-
// separated skip tokens."
func EnvSkipTokens() []string {
	val := os.Getenv("PREK_SKIP")
	if val == "" {
		val = os.Getenv("SKIP")
	}
	if val == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(val, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
