package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hookwave/hookwave/internal/chunk"
	"github.com/hookwave/hookwave/internal/filter"
	"github.com/hookwave/hookwave/internal/workspace"
)

// stagedFiles lists the staged, added/copied/modified/renamed files
// relative to workspaceRoot, the CLI's default candidate set (spec.md
// §4.8 step 2's "staged files" source). Grounded on the teacher's
// runGitDiff (pk/gitdiff.go): shell out to git directly rather than
// linking a git library, since the only thing needed is one plumbing
// command's stdout.
func stagedFiles(workspaceRoot string) ([]string, error) {
	cmd := exec.Command("git", "diff", "--name-only", "--cached", "--diff-filter=ACMR")
	cmd.Dir = workspaceRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out, workspaceRoot), nil
}

// walkAllFiles lists every regular file under workspaceRoot, skipping
// the same directories the Workspace Discoverer never descends into,
// for --all-files runs.
func walkAllFiles(workspaceRoot string) ([]string, error) {
	skip := make(map[string]struct{}, len(workspace.DefaultSkipDirs))
	for _, d := range workspace.DefaultSkipDirs {
		skip[d] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(workspaceRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := filepath.Base(p)
			if p != workspaceRoot && (base == ".git" || strings.HasPrefix(base, ".")) {
				return filepath.SkipDir
			}
			if _, ok := skip[base]; ok {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(workspaceRoot, p)
		if err != nil {
			return err
		}
		files = append(files, filter.NormalizePath(rel))
		return nil
	})
	return files, err
}

func splitNonEmptyLines(out []byte, workspaceRoot string) []string {
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, filter.NormalizePath(line))
	}
	return files
}

func chunkDefaultConcurrency() int {
	return chunk.DefaultConcurrency()
}
