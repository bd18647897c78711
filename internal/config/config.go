// Package config defines the validated configuration tree for a hookwave
// project config file and loads it from YAML.
//
// Loading itself — the mechanics of turning bytes into this tree — is the
// "config loader" collaborator the scheduling core treats as external. The
// tree shape is part of the core's data model (it is exactly Project.config
// from the data model), so it lives here rather than behind an opaque
// interface.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of a project's config file.
type Config struct {
	Repos                   []RepoEntry       `yaml:"repos"`
	DefaultLanguageVersion  map[string]string `yaml:"default_language_version,omitempty"`
	DefaultStages           []string          `yaml:"default_stages,omitempty"`
	Files                   string            `yaml:"files,omitempty"`
	Exclude                 string            `yaml:"exclude,omitempty"`
	FailFast                bool              `yaml:"fail_fast,omitempty"`
	MinimumPreCommitVersion string            `yaml:"minimum_pre_commit_version,omitempty"`
	MinimumPrekVersion      string            `yaml:"minimum_prek_version,omitempty"`
	Orphan                  bool              `yaml:"orphan,omitempty"`

	// Path is the absolute path to the file this was loaded from. Not part
	// of the YAML shape; set by Load.
	Path string `yaml:"-"`
}

// RepoEntry is one `repos[]` entry: a source of hooks (a remote repo,
// `local`, or `meta`) plus the hooks selected from it.
type RepoEntry struct {
	Repo  string    `yaml:"repo"`
	Rev   string    `yaml:"rev,omitempty"`
	Hooks []HookDef `yaml:"hooks"`
}

// HookDef is the declared shape of a hook within a config file, matching
// spec.md §3's Hook attributes and §6's "hook having the attributes
// enumerated in §3". Field names track blairham-go-pre-commit's
// pkg/config.Hook, the closest real Go rendition of this config shape in
// the retrieved corpus.
type HookDef struct {
	ID                      string            `yaml:"id"`
	Name                    string            `yaml:"name,omitempty"`
	Entry                   string            `yaml:"entry,omitempty"`
	Language                string            `yaml:"language,omitempty"`
	Args                    []string          `yaml:"args,omitempty"`
	Env                     map[string]string `yaml:"env,omitempty"`
	AdditionalDependencies  []string          `yaml:"additional_dependencies,omitempty"`
	LanguageVersion         string            `yaml:"language_version,omitempty"`

	Files        string   `yaml:"files,omitempty"`
	ExcludeRegex string   `yaml:"exclude,omitempty"`
	Types        []string `yaml:"types,omitempty"`
	TypesOr      []string `yaml:"types_or,omitempty"`
	ExcludeTypes []string `yaml:"exclude_types,omitempty"`

	PassFilenames *bool    `yaml:"pass_filenames,omitempty"`
	AlwaysRun     bool     `yaml:"always_run,omitempty"`
	RequireSerial bool     `yaml:"require_serial,omitempty"`
	Stages        []string `yaml:"stages,omitempty"`

	// Priority is unsigned; absent (nil) means "auto-assign to config
	// index" per spec.md §3/§4.7. Recognized by hookwave, ignored by the
	// legacy upstream tool per spec.md §6.
	Priority *uint32 `yaml:"priority,omitempty"`

	Verbose bool   `yaml:"verbose,omitempty"`
	LogFile string `yaml:"log_file,omitempty"`
	// FailFast on a single hook puts the scheduler into fail-fast mode
	// when that hook fails, per spec.md §4.7.
	FailFast bool `yaml:"fail_fast,omitempty"`

	// line is the YAML source line this hook was declared at, captured
	// during decode for error reporting. Populated by attachHookLines.
	line int `yaml:"-"`
}

// Line returns the 1-based source line the hook was declared at, or 0 if
// unknown (e.g. constructed in tests rather than decoded from YAML).
func (h HookDef) Line() int { return h.line }

// PassesFilenames reports the effective pass_filenames value: true unless
// explicitly set to false.
func (h HookDef) PassesFilenames() bool {
	return h.PassFilenames == nil || *h.PassFilenames
}

// DefaultStage is the implicit stage a hook belongs to when neither it
// nor its project config declares any stages at all.
const DefaultStage = "pre-commit"

// EffectiveStages returns the stage set h runs in: its own `stages` if
// set, else the project's `default_stages`, else the single implicit
// DefaultStage, per standard pre-commit/prek stage resolution.
func (h HookDef) EffectiveStages(defaultStages []string) []string {
	if len(h.Stages) > 0 {
		return h.Stages
	}
	if len(defaultStages) > 0 {
		return defaultStages
	}
	return []string{DefaultStage}
}

// MatchesAnyStage reports whether h's effective stage set intersects
// requested. An empty requested set means "no --hook-stage filter was
// given," which matches every hook.
func (h HookDef) MatchesAnyStage(defaultStages, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	want := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		want[s] = struct{}{}
	}
	for _, s := range h.EffectiveStages(defaultStages) {
		if _, ok := want[s]; ok {
			return true
		}
	}
	return false
}

// Error is a configuration error with the source location of the offending
// node, satisfying spec.md §7.1's "exit non-zero with the offending
// location".
type Error struct {
	Path string
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Load reads and decodes a config file from path, returning a validated
// Config tree. Decoding errors and basic structural validation errors
// (spec.md §7.1) are returned as *Error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Decode(path, data)
}

// Decode parses YAML bytes into a Config, attributing path to error
// locations. Exposed separately from Load so callers (and tests) can
// decode in-memory content without touching the filesystem.
func Decode(path string, data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &Error{Path: path, Msg: err.Error()}
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, &Error{Path: path, Line: root.Line, Col: root.Column, Msg: err.Error()}
	}
	cfg.Path = path

	attachHookLines(&root, &cfg)

	if err := validate(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// attachHookLines walks the raw YAML document alongside the decoded tree
// to record each hook's source line, so configuration errors discovered
// later (invalid regex, priority conflicts) can still report a location.
func attachHookLines(root *yaml.Node, cfg *Config) {
	reposNode := findMappingValue(root, "repos")
	if reposNode == nil || reposNode.Kind != yaml.SequenceNode {
		return
	}
	for i, repoNode := range reposNode.Content {
		if i >= len(cfg.Repos) {
			break
		}
		hooksNode := findMappingValue(repoNode, "hooks")
		if hooksNode == nil || hooksNode.Kind != yaml.SequenceNode {
			continue
		}
		for j, hookNode := range hooksNode.Content {
			if j >= len(cfg.Repos[i].Hooks) {
				break
			}
			cfg.Repos[i].Hooks[j].line = hookNode.Line
		}
	}
}

func findMappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil {
		return nil
	}
	target := node
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		target = node.Content[0]
	}
	if target.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(target.Content); i += 2 {
		if target.Content[i].Value == key {
			return target.Content[i+1]
		}
	}
	return nil
}

// validate enforces the structural checks of spec.md §7.1 that are not
// already guaranteed by the Go type system: a missing "repo" on a repos[]
// entry and a missing "id" on a hook. It does not check regexes (the
// filter package owns the regex engine) or priorities.
func validate(path string, cfg *Config) error {
	for ri, repo := range cfg.Repos {
		if repo.Repo == "" {
			return &Error{Path: path, Msg: fmt.Sprintf("repos[%d]: missing required field \"repo\"", ri)}
		}
		for hi, hook := range repo.Hooks {
			if hook.ID == "" {
				return &Error{Path: path, Line: hook.line, Msg: fmt.Sprintf("repos[%d].hooks[%d]: missing required field \"id\"", ri, hi)}
			}
		}
	}
	return nil
}
