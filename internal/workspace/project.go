// Package workspace implements the Workspace Discoverer (spec.md §4.1,
// component C3) and the Project data type and claim rule of spec.md §3/§4.3.
//
// Directory walking follows the teacher's findGitRoot/walkDirectories shape
// (pk/filesystem.go): walk up once to find a boundary, walk down once to
// enumerate, cache nothing beyond the single discovery pass.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hookwave/hookwave/internal/config"
	"github.com/hookwave/hookwave/internal/hooklog"
)

var log = hooklog.NewWithCategory(true, "discover")

// ConfigFileName is the default name of a hookwave project config file.
const ConfigFileName = ".hookwave.yaml"

// RepoMarker is the directory that bounds upward/downward discovery walks
// (spec.md §4.1 step 2: "bounded by the repository root").
const RepoMarker = ".git"

// Project is a directory containing a config file (spec.md §3).
type Project struct {
	Root     string // absolute path
	Depth    int    // path components below the workspace root
	Orphan   bool
	Config   *config.Config
	FailFast bool
}

// DefaultSkipDirs are directories walkProjects never descends into, matching
// the teacher's DefaultSkipDirs in spirit (pk/plan.go's walkDirectories
// call), extended with the dirs a hook orchestrator actually needs to
// avoid (VCS internals, common dependency caches).
var DefaultSkipDirs = []string{".git", "node_modules", "vendor", ".venv", "__pycache__"}

// DiscoverOptions configures a discovery pass.
type DiscoverOptions struct {
	// StartDir is where upward discovery begins; defaults to the current
	// working directory.
	StartDir string
	// ExplicitConfigPath, if set, enters single-config mode (spec.md
	// §4.1 step 4): only that file becomes a project, rooted at the
	// repository root, and tree discovery is skipped entirely.
	ExplicitConfigPath string
	// AllowNoConfig disables the "no config found" error (spec.md §4.1
	// step 1, gated by PREK_ALLOW_NO_CONFIG/PRE_COMMIT_ALLOW_NO_CONFIG per
	// spec.md §6).
	AllowNoConfig bool
	SkipDirs      []string
	// IgnoreGlobs are doublestar patterns (relative to the workspace
	// root, '/'-separated, '**' supported) that prune a directory from
	// the downward walk in addition to SkipDirs. Lets a project opt out
	// of build-output or vendored trees the fixed SkipDirs names can't
	// anticipate, without needing its own orphan project just to hide
	// them.
	IgnoreGlobs []string
}

// Discover runs the Workspace Discoverer: find the workspace root, then
// enumerate every project beneath it, per spec.md §4.1. The returned slice
// is sorted deepest-first per spec.md §4.1 step 3 (depth descending, then
// root lexicographically).
func Discover(opts DiscoverOptions) ([]*Project, error) {
	if opts.ExplicitConfigPath != "" {
		return discoverSingleConfig(opts.ExplicitConfigPath)
	}

	startDir := opts.StartDir
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		startDir = wd
	}
	startDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("resolving start dir: %w", err)
	}

	repoRoot, err := findRepoRoot(startDir)
	if err != nil {
		return nil, err
	}

	workspaceRoot, err := findWorkspaceRoot(startDir, repoRoot)
	if err != nil {
		if opts.AllowNoConfig {
			return nil, nil
		}
		return nil, err
	}

	skipDirs := opts.SkipDirs
	if skipDirs == nil {
		skipDirs = DefaultSkipDirs
	}

	projects, err := walkProjects(workspaceRoot, repoRoot, skipDirs, opts.IgnoreGlobs)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		if opts.AllowNoConfig {
			return nil, nil
		}
		return nil, fmt.Errorf("no config file (%s) found under %s", ConfigFileName, workspaceRoot)
	}

	sortDeepestFirst(projects)
	log.Debug("discovered projects", "workspace_root", workspaceRoot, "count", len(projects))
	return projects, nil
}

// discoverSingleConfig implements spec.md §4.1 step 4: single-config mode.
func discoverSingleConfig(path string) ([]*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	repoRoot, err := findRepoRoot(filepath.Dir(abs))
	if err != nil {
		repoRoot = filepath.Dir(abs)
	}
	return []*Project{{
		Root:     repoRoot,
		Depth:    0,
		Orphan:   cfg.Orphan,
		Config:   cfg,
		FailFast: cfg.FailFast,
	}}, nil
}

// findRepoRoot walks up from dir looking for RepoMarker, bounding all
// downward traversal (spec.md §4.1 step 2: "no traversal into sibling
// repositories"). If no marker is found, dir itself is treated as the
// boundary.
func findRepoRoot(dir string) (string, error) {
	cur := dir
	for {
		if _, err := os.Stat(filepath.Join(cur, RepoMarker)); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir, nil
		}
		cur = parent
	}
}

// findWorkspaceRoot walks upward from startDir, bounded by repoRoot,
// looking for the first ancestor containing a config file (spec.md §4.1
// step 1).
func findWorkspaceRoot(startDir, repoRoot string) (string, error) {
	cur := startDir
	for {
		if _, err := os.Stat(filepath.Join(cur, ConfigFileName)); err == nil {
			return cur, nil
		}
		if cur == repoRoot {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return "", fmt.Errorf("no %s found walking up from %s (bounded by %s)", ConfigFileName, startDir, repoRoot)
}

// walkProjects walks downward from workspaceRoot, bounded by repoRoot,
// yielding every directory containing a config file (spec.md §4.1 step 2).
//
// ignoreGlobs are matched with bmatcuk/doublestar against the directory's
// path relative to workspaceRoot, so a pattern like "**/testdata" prunes
// the whole subtree the same way .gitignore would — grounded on the
// ignore-style path matching the retrieved multi-workspace repos
// (default-anton-wt, raphi011-wt) use for their own tree walks.
func walkProjects(workspaceRoot, repoRoot string, skipDirs, ignoreGlobs []string) ([]*Project, error) {
	skipSet := make(map[string]struct{}, len(skipDirs))
	for _, d := range skipDirs {
		skipSet[d] = struct{}{}
	}

	var projects []*Project
	depthBase := strings.Count(filepath.ToSlash(workspaceRoot), "/")

	err := filepath.WalkDir(workspaceRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(p)
		if p != workspaceRoot {
			if _, skip := skipSet[base]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(base, ".") && base != filepath.Base(workspaceRoot) {
				// Hidden directories are not walked into for project
				// discovery, except the workspace root itself which may
				// legitimately be a dotdir in a nested checkout.
				return filepath.SkipDir
			}
			if matchesAnyGlob(ignoreGlobs, workspaceRoot, p) {
				return filepath.SkipDir
			}
			if _, markerErr := os.Stat(filepath.Join(p, RepoMarker)); markerErr == nil {
				// A nested repository is a boundary of its own.
				return filepath.SkipDir
			}
		}

		cfgPath := filepath.Join(p, ConfigFileName)
		if _, statErr := os.Stat(cfgPath); statErr != nil {
			return nil
		}

		cfg, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			return loadErr
		}

		depth := strings.Count(filepath.ToSlash(p), "/") - depthBase

		projects = append(projects, &Project{
			Root:     p,
			Depth:    depth,
			Orphan:   cfg.Orphan,
			Config:   cfg,
			FailFast: cfg.FailFast,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = repoRoot // retained for signature symmetry
	return projects, nil
}

// matchesAnyGlob reports whether p's path relative to workspaceRoot
// matches any of globs.
func matchesAnyGlob(globs []string, workspaceRoot, p string) bool {
	if len(globs) == 0 {
		return false
	}
	rel, err := filepath.Rel(workspaceRoot, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// sortDeepestFirst orders projects by depth descending, then root
// lexicographically ascending, per spec.md §4.1 step 3.
func sortDeepestFirst(projects []*Project) {
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].Depth != projects[j].Depth {
			return projects[i].Depth > projects[j].Depth
		}
		return projects[i].Root < projects[j].Root
	})
}

// ClaimingProjects implements the project claim rule of spec.md §4.3: a
// path is claimed by every project that is an ancestor of (or equal to)
// its directory, except that an `orphan: true` project cuts off delivery
// to everything above it. projects need not be sorted; the result is
// ordered deepest claimant first.
func ClaimingProjects(absPath string, projects []*Project) []*Project {
	dir := filepath.Dir(absPath)

	var ancestors []*Project
	for _, p := range projects {
		if isAncestorOrSelf(p.Root, dir) {
			ancestors = append(ancestors, p)
		}
	}
	sort.Slice(ancestors, func(i, j int) bool {
		return ancestors[i].Depth > ancestors[j].Depth
	})

	var claimants []*Project
	for _, p := range ancestors {
		claimants = append(claimants, p)
		if p.Orphan {
			break
		}
	}
	return claimants
}

// isAncestorOrSelf reports whether root is dir itself or a path ancestor
// of dir.
func isAncestorOrSelf(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}
