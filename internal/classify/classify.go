// Package classify implements the File Classifier (spec.md §4.2, component
// C1): given a path and a small amount of filesystem evidence, it returns
// the set of content-type tags the path bears.
//
// Classification is a pure function of (path, head bytes, metadata) per
// spec.md §4.2. The shared result cache (§9 "Global state") is the only
// legitimate global piece of state in the whole core, and even that is
// passed explicitly via a *Cache handle rather than a package-level
// singleton — grounded on the teacher's findGitRoot/walkDirectories pattern
// in pk/filesystem.go, generalized from a sync.Once-memoized single value to
// a sync.Map-backed per-path cache.
package classify

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"github.com/gofrs/flock"
)

// Tag is a single content-type tag drawn from the fixed vocabulary spec.md
// §4.2 describes (file, symlink, executable, text, binary, plus language
// tags).
type Tag string

const (
	TagFile       Tag = "file"
	TagSymlink    Tag = "symlink"
	TagExecutable Tag = "executable"
	TagText       Tag = "text"
	TagBinary     Tag = "binary"
)

// extensionTags maps a lowercased file extension (including the leading
// dot) to the language tags it implies. This is the "explicit extension
// table" step of spec.md §4.2's classification order.
var extensionTags = map[string][]Tag{
	".go":     {"go"},
	".mod":    {"go"},
	".py":     {"python"},
	".pyi":    {"python"},
	".js":     {"javascript"},
	".mjs":    {"javascript"},
	".cjs":    {"javascript"},
	".jsx":    {"javascript", "jsx"},
	".ts":     {"typescript"},
	".tsx":    {"typescript", "tsx"},
	".rs":     {"rust"},
	".rb":     {"ruby"},
	".java":   {"java"},
	".c":      {"c"},
	".h":      {"c", "header"},
	".cc":     {"c++"},
	".cpp":    {"c++"},
	".hpp":    {"c++", "header"},
	".sh":     {"shell"},
	".bash":   {"shell", "bash"},
	".zsh":    {"shell", "zsh"},
	".yaml":   {"yaml"},
	".yml":    {"yaml"},
	".json":   {"json"},
	".toml":   {"toml"},
	".md":     {"markdown"},
	".rst":    {"rst"},
	".html":   {"html"},
	".css":    {"css"},
	".sql":    {"sql"},
	".proto":  {"proto"},
	".lua":    {"lua"},
	".dockerfile": {"docker"},
}

// globTags handles basenames the extension table can't express: filenames
// with no informative extension (Dockerfile, Makefile) or extensions that
// vary by position (*.pb.go). Checked before the extension table so a
// generated-code tag can coexist with the language tag the extension table
// would assign anyway.
//
// gobwas/glob gives a fast compiled matcher for this small, fixed pattern
// set — lighter weight than pulling the filter package's regexp2 engine in
// for what is just shell-glob basename matching, and the real Go
// reimplementation of this tool (blairham-go-pre-commit) carries the same
// dependency for its own glob-based ignore handling.
var globTags = []struct {
	pattern string
	g       glob.Glob
	tag     Tag
}{
	{pattern: "Dockerfile*", tag: "docker"},
	{pattern: "Makefile*", tag: "makefile"},
	{pattern: "*.pb.go", tag: "generated"},
	{pattern: "*.generated.go", tag: "generated"},
}

func init() {
	for i, gt := range globTags {
		globTags[i].g = glob.MustCompile(gt.pattern)
	}
}

// matchGlobTags returns the tags implied by base's basename against
// globTags, in declared order.
func matchGlobTags(base string) []Tag {
	var tags []Tag
	for _, gt := range globTags {
		if gt.g.Match(base) {
			tags = append(tags, gt.tag)
		}
	}
	return tags
}

// shebangTags maps an interpreter basename, sniffed from a shebang line, to
// the language tag it implies. This is the "shebang sniff of first 128
// bytes" step of spec.md §4.2.
var shebangTags = map[string]Tag{
	"sh":      "shell",
	"bash":    "shell",
	"zsh":     "shell",
	"python":  "python",
	"python3": "python",
	"node":    "javascript",
	"ruby":    "ruby",
	"perl":    "perl",
}

const shebangSniffBytes = 128

// Cache memoizes (path -> tag set) for the duration of one run. Safe for
// concurrent use: reads take the fast path through sync.Map, writes are
// naturally deduplicated by sync.Map.LoadOrStore so two goroutines racing to
// classify the same path converge on one computed result.
type Cache struct {
	m sync.Map // string -> map[Tag]struct{}
}

// NewCache returns an empty classifier cache.
func NewCache() *Cache { return &Cache{} }

// diskEntry is the on-disk encoding of one cache entry: a tag set can't
// round-trip through JSON as a map[Tag]struct{} directly (struct{} values
// marshal to `{}` but Tag keys need no special handling), so entries are
// stored as path -> []Tag and rebuilt into sets on load.
type diskEntry struct {
	Path string `json:"path"`
	Tags []Tag  `json:"tags"`
}

// LoadFromDisk warm-starts cache from a JSON file previously written by
// SaveToDisk, guarded by an advisory file lock so a concurrent run
// persisting its own cache can't produce a half-written file. Missing file
// is not an error: a cold cache is always valid, just slower.
//
// The classifier cache is otherwise entirely in-memory and run-scoped
// (spec.md §9); this is purely an optimization for repeated invocations
// against the same tree (e.g. a CI job restoring a persisted cache
// directory between runs), not part of the core scheduling contract.
func (c *Cache) LoadFromDisk(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var entries []diskEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		set := make(map[Tag]struct{}, len(e.Tags))
		for _, t := range e.Tags {
			set[t] = struct{}{}
		}
		c.m.Store(e.Path, set)
	}
	return nil
}

// SaveToDisk persists cache to path as JSON, guarded by the same advisory
// lock LoadFromDisk takes, so readers never observe a torn write.
func (c *Cache) SaveToDisk(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	var entries []diskEntry
	c.m.Range(func(k, v any) bool {
		set := v.(map[Tag]struct{})
		tags := make([]Tag, 0, len(set))
		for t := range set {
			tags = append(tags, t)
		}
		entries = append(entries, diskEntry{Path: k.(string), Tags: tags})
		return true
	})

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Info is the filesystem evidence needed to classify a path, matching
// spec.md §4.2's "(path, file-head-bytes, metadata)" pure-function inputs.
type Info struct {
	// IsSymlink, IsDir, Executable are derived from os.Lstat by the
	// caller (ReadInfo, called by the Workspace Runner), kept separate from this package
	// so Classify itself never touches the filesystem and stays a pure
	// function, as spec.md §4.2 requires.
	IsSymlink  bool
	IsDir      bool
	Executable bool
	// Head is up to the first shebangSniffBytes bytes of the file.
	// Nil/empty for directories or symlinks.
	Head []byte
}

// Classify returns the tag set for path, consulting cache first and
// populating it on miss. repoRelPath is used only as the cache key and for
// the extension lookup; it need not exist on disk (classification never
// stats the filesystem itself — that's the caller's job via Info).
func Classify(cache *Cache, repoRelPath string, info Info) map[Tag]struct{} {
	if cache != nil {
		if v, ok := cache.m.Load(repoRelPath); ok {
			return v.(map[Tag]struct{})
		}
	}

	tags := classify(repoRelPath, info)

	if cache != nil {
		actual, _ := cache.m.LoadOrStore(repoRelPath, tags)
		return actual.(map[Tag]struct{})
	}
	return tags
}

func classify(repoRelPath string, info Info) map[Tag]struct{} {
	tags := make(map[Tag]struct{})

	if info.IsSymlink {
		tags[TagSymlink] = struct{}{}
		return tags
	}
	if info.IsDir {
		return tags
	}
	tags[TagFile] = struct{}{}
	if info.Executable {
		tags[TagExecutable] = struct{}{}
	}

	// Explicit extension table, plus the glob table for basenames an
	// extension can't express.
	ext := strings.ToLower(filepath.Ext(repoRelPath))
	rawBase := filepath.Base(repoRelPath)
	for _, t := range matchGlobTags(rawBase) {
		tags[t] = struct{}{}
	}
	for _, t := range extensionTags[ext] {
		tags[t] = struct{}{}
	}

	// Shebang sniff, only meaningful when the extension table found
	// nothing language-specific (an extensionless script).
	if lang, ok := sniffShebang(info.Head); ok {
		tags[lang] = struct{}{}
	}

	// Content sniff: UTF-8 validity decides text vs binary, unless the
	// extension table already committed to a known text format.
	untagged := 1 // TagFile
	if info.Executable {
		untagged++ // TagExecutable
	}
	if len(tags) == untagged { // only TagFile (and TagExecutable) so far
		if isText(info.Head) {
			tags[TagText] = struct{}{}
		} else if len(info.Head) > 0 {
			tags[TagBinary] = struct{}{}
		}
	} else {
		// A recognized language/markup extension is always text.
		tags[TagText] = struct{}{}
	}

	return tags
}

func sniffShebang(head []byte) (Tag, bool) {
	if len(head) < 2 || head[0] != '#' || head[1] != '!' {
		return "", false
	}
	n := len(head)
	if n > shebangSniffBytes {
		n = shebangSniffBytes
	}
	line := string(head[:n])
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimPrefix(line, "#!")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	interp := filepath.Base(fields[0])
	// Handle `#!/usr/bin/env python3` style shebangs.
	if interp == "env" && len(fields) > 1 {
		interp = fields[1]
	}
	tag, ok := shebangTags[interp]
	return tag, ok
}

// isText reports whether head looks like UTF-8 text: valid UTF-8 and free
// of NUL bytes, the same heuristic git and most classifiers use.
func isText(head []byte) bool {
	if len(head) == 0 {
		return true
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return false
	}
	return utf8.Valid(head)
}

// ReadInfo builds an Info for path (relative to root) by statting and, for
// regular files, reading the first shebangSniffBytes bytes. This is the
// thin, filesystem-touching half of classification the Workspace Runner
// (internal/orchestrate) calls before handing evidence to the pure Classify function.
func ReadInfo(root, repoRelPath string) (Info, error) {
	full := filepath.Join(root, repoRelPath)
	lst, err := os.Lstat(full)
	if err != nil {
		return Info{}, err
	}
	if lst.Mode()&os.ModeSymlink != 0 {
		return Info{IsSymlink: true}, nil
	}
	if lst.IsDir() {
		return Info{IsDir: true}, nil
	}

	info := Info{Executable: lst.Mode()&0o111 != 0}

	f, err := os.Open(full)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	buf := make([]byte, shebangSniffBytes)
	n, _ := f.Read(buf)
	info.Head = buf[:n]
	return info, nil
}
