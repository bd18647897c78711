// Command hookwave is the CLI entry point: a thin cobra wrapper around
// internal/orchestrate. It performs no scheduling or selection logic of
// its own — that is deliberate, per spec.md §4.8's ownership of the
// run sequence.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hookwave/hookwave/internal/classify"
	"github.com/hookwave/hookwave/internal/envflags"
	"github.com/hookwave/hookwave/internal/filter"
	"github.com/hookwave/hookwave/internal/hooklog"
	"github.com/hookwave/hookwave/internal/orchestrate"
	"github.com/hookwave/hookwave/internal/output"
	"github.com/hookwave/hookwave/internal/runner"
	"github.com/hookwave/hookwave/internal/selector"
	"github.com/hookwave/hookwave/internal/workspace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hookwave",
		Short:         "Multi-project git hook scheduler",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd())
	return root
}

type runFlags struct {
	skip        []string
	allFiles    bool
	files       []string
	configPath  string
	cd          string
	verbose     int
	dryRun      bool
	concurrency int
	hookStages  []string
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:           "run [selectors...]",
		Short:         "Discover projects and run matching hooks",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.skip, "skip", nil, "additional skip tokens (repeatable, or comma-separated)")
	cmd.Flags().BoolVar(&flags.allFiles, "all-files", false, "run against every file in the workspace, not just staged/changed ones")
	cmd.Flags().StringSliceVar(&flags.files, "files", nil, "run against an explicit file list")
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to a single explicit config file (disables project discovery)")
	cmd.Flags().StringVarP(&flags.cd, "cd", "C", "", "change to this directory before discovering projects")
	cmd.Flags().CountVarP(&flags.verbose, "verbose", "v", "increase verbosity (-v, -vv, -vvv)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the resolved plan without executing any hook")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "override the scheduler's concurrency limit C")
	cmd.Flags().StringSliceVar(&flags.hookStages, "hook-stage", nil, "restrict to hooks whose stage set intersects this list (repeatable, or comma-separated)")

	return cmd
}

func runRun(cmd *cobra.Command, selectors []string, flags *runFlags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := hooklog.New(flags.verbose > 0)

	startDir := flags.cd
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		startDir = wd
	}
	startDir, err := filepath.Abs(startDir)
	if err != nil {
		return err
	}

	projects, err := workspace.Discover(workspace.DiscoverOptions{
		StartDir:            startDir,
		ExplicitConfigPath:  flags.configPath,
		AllowNoConfig:       envflags.AllowNoConfig(),
	})
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		log.Debug("no projects discovered; nothing to do")
		return nil
	}

	files, err := resolveFiles(startDir, flags)
	if err != nil {
		return err
	}

	skipTokens := append([]string{}, flags.skip...)
	skipTokens = append(skipTokens, selector.EnvSkipTokens()...)

	concurrency := flags.concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency()
	}
	if envflags.NoConcurrency() {
		concurrency = 1
	}

	agg := output.NewForTerminal(envflags.PREKColor() == envflags.ColorAlways, envflags.PREKColor() == envflags.ColorNever)

	if flags.dryRun {
		return printPlan(projects, files, selectors, skipTokens)
	}

	result, err := orchestrate.Run(ctx, orchestrate.Options{
		WorkspaceRoot: startDir,
		Projects:      projects,
		Files:         files,
		IncludeTokens: selectors,
		SkipTokens:    skipTokens,
		HookStages:    flags.hookStages,
		Runner:        runner.NewSystem(),
		Aggregator:    agg,
		Concurrency:   concurrency,
		Verbose:       flags.verbose > 0,
		ClassifyCache: classify.NewCache(),
		RegexCache:    filter.NewCompiledSet(),
	})
	if err != nil {
		return err
	}
	if result.ExitNonZero {
		return errExitNonZero{}
	}
	return nil
}

// errExitNonZero signals "some invocation failed or was cancelled"
// without printing an additional error line — the Output Aggregator has
// already reported each failing invocation.
type errExitNonZero struct{}

func (errExitNonZero) Error() string { return "" }

func resolveFiles(workspaceRoot string, flags *runFlags) ([]string, error) {
	if len(flags.files) > 0 {
		return normalizeAll(workspaceRoot, flags.files), nil
	}
	if flags.allFiles {
		return walkAllFiles(workspaceRoot)
	}
	return stagedFiles(workspaceRoot)
}

func normalizeAll(workspaceRoot string, files []string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		if filepath.IsAbs(f) {
			if rel, err := filepath.Rel(workspaceRoot, f); err == nil {
				f = rel
			}
		}
		out[i] = filter.NormalizePath(f)
	}
	return out
}

func defaultConcurrency() int {
	return chunkDefaultConcurrency()
}

func printPlan(projects []*workspace.Project, files, selectors, skip []string) error {
	fmt.Printf("workspace plan: %d project(s), %d candidate file(s)\n", len(projects), len(files))
	for _, p := range projects {
		fmt.Printf("  project %s (depth=%d orphan=%v)\n", p.Root, p.Depth, p.Orphan)
	}
	if len(selectors) > 0 {
		fmt.Printf("  include: %s\n", strings.Join(selectors, ", "))
	}
	if len(skip) > 0 {
		fmt.Printf("  skip: %s\n", strings.Join(skip, ", "))
	}
	return nil
}
