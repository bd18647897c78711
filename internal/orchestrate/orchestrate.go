// Package orchestrate implements the Workspace Runner (spec.md §4.8,
// component C8): the glue that drives the Workspace Discoverer, File
// Filter, Selector Engine, Command Chunker, Priority Scheduler and
// Output Aggregator through one run, per project, deepest-first.
package orchestrate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hookwave/hookwave/internal/chunk"
	"github.com/hookwave/hookwave/internal/classify"
	"github.com/hookwave/hookwave/internal/config"
	"github.com/hookwave/hookwave/internal/filter"
	"github.com/hookwave/hookwave/internal/output"
	"github.com/hookwave/hookwave/internal/runner"
	"github.com/hookwave/hookwave/internal/scheduler"
	"github.com/hookwave/hookwave/internal/selector"
	"github.com/hookwave/hookwave/internal/workspace"
)

// Options configures one Workspace Runner pass.
type Options struct {
	WorkspaceRoot string
	// Projects must already be sorted deepest-first, as workspace.Discover
	// returns them.
	Projects []*workspace.Project
	// Files are candidate paths, repository-relative with '/' separators,
	// from the CLI collaborator (staged files, --all-files, or explicit
	// arguments) — spec.md §4.8 step 2.
	Files []string

	IncludeTokens []string
	SkipTokens    []string
	// HookStages narrows hooks to those whose effective stage set
	// intersects this list (spec.md §6/SPEC_FULL.md's --hook-stage). Empty
	// means no narrowing: every hook runs regardless of stage.
	HookStages []string

	Runner      runner.Runner
	Aggregator  *output.Aggregator
	Concurrency int
	Verbose     bool
	ChunkLimit  int

	ClassifyCache *classify.Cache
	RegexCache    *filter.CompiledSet
}

// Result is the outcome of one full run.
type Result struct {
	ExitNonZero bool
	Outcomes    []scheduler.Outcome
}

// Run executes spec.md §4.8 steps 2-5: per project, in the given order,
// compute claimed files, build invocations, and hand them to the
// scheduler in one pass each; projects run sequentially with respect to
// each other.
func Run(ctx context.Context, opts Options) (Result, error) {
	classifyCache := opts.ClassifyCache
	if classifyCache == nil {
		classifyCache = classify.NewCache()
	}
	regexCache := opts.RegexCache
	if regexCache == nil {
		regexCache = filter.NewCompiledSet()
	}

	tagged, err := tagFiles(opts.WorkspaceRoot, opts.Files, classifyCache)
	if err != nil {
		return Result{}, err
	}

	// Build every project's invocations/candidates up front so token
	// resolution (spec.md §4.4 rule 3's bare-token ambiguity, and unknown-
	// token validation per §7.2) can see the whole workspace's hook ids,
	// not just one project's.
	type projectBuild struct {
		project     *workspace.Project
		invocations []scheduler.Invocation
		candidates  []selector.Candidate
		metas       []*invocationMeta
	}

	builds := make([]projectBuild, 0, len(opts.Projects))
	var allCandidates []selector.Candidate

	for _, project := range opts.Projects {
		claimedPaths := claimedFilesFor(project, opts.Projects, opts.WorkspaceRoot, opts.Files)
		claimedTagged := subsetTagged(tagged, claimedPaths)

		invocations, candidates, metas, err := buildProjectInvocations(project, claimedTagged, regexCache, opts)
		if err != nil {
			return Result{}, err
		}
		builds = append(builds, projectBuild{project: project, invocations: invocations, candidates: candidates, metas: metas})
		allCandidates = append(allCandidates, candidates...)
	}

	if err := selector.ValidateTokens(opts.IncludeTokens, allCandidates); err != nil {
		return Result{}, err
	}
	knownHookIDs := selector.KnownHookIDs(allCandidates)

	var allOutcomes []scheduler.Outcome
	exitNonZero := false

	for _, b := range builds {
		selected, err := selector.ResolveWithKnownHookIDs(opts.IncludeTokens, opts.SkipTokens, b.candidates, knownHookIDs)
		if err != nil {
			return Result{}, err
		}
		selectedSet := make(map[selector.Candidate]struct{}, len(selected))
		for _, c := range selected {
			selectedSet[c] = struct{}{}
		}

		var filtered []scheduler.Invocation
		var filteredMetas []*invocationMeta
		for i, inv := range b.invocations {
			if _, ok := selectedSet[b.candidates[i]]; ok {
				filtered = append(filtered, inv)
				filteredMetas = append(filteredMetas, b.metas[i])
			}
		}

		metaByInvocation := make(map[*scheduler.Invocation]*invocationMeta, len(filtered))
		for i := range filtered {
			metaByInvocation[&filtered[i]] = filteredMetas[i]
		}

		project := b.project
		outcomes := scheduler.Run(ctx, filtered, scheduler.Options{
			Concurrency: opts.Concurrency,
			FailFast:    project.FailFast,
			OnTransition: func(o scheduler.Outcome) {
				if o.State == scheduler.Running {
					return
				}
				emitOutcome(opts.Aggregator, o, metaByInvocation[o.Invocation])
			},
		})

		for _, o := range outcomes {
			if o.State == scheduler.Failure || o.State == scheduler.Cancelled {
				exitNonZero = true
			}
		}
		allOutcomes = append(allOutcomes, outcomes...)
	}

	return Result{ExitNonZero: exitNonZero, Outcomes: allOutcomes}, nil
}

// invocationMeta carries the rendering/execution data a scheduler
// invocation's Exec closure needs but scheduler.Invocation itself
// doesn't model: display name, working directory, and (once Exec has
// run) the captured runner.Result for the Output Aggregator to render.
type invocationMeta struct {
	displayName string
	projectPath string
	workDir     string
	entry       string
	args        []string
	env         map[string]string
	files       []string
	passFiles   bool
	logFile     string
	verbose     bool

	result *runner.Result
}

func buildProjectInvocations(project *workspace.Project, claimed []filter.TaggedPath, regexCache *filter.CompiledSet, opts Options) ([]scheduler.Invocation, []selector.Candidate, []*invocationMeta, error) {
	var invocations []scheduler.Invocation
	var candidates []selector.Candidate
	var metas []*invocationMeta

	projectFiles, err := applyProjectOuterFilter(project.Config, claimed, regexCache)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("project %s: %w", project.Root, err)
	}
	relProjPath := relProjectPath(opts.WorkspaceRoot, project.Root)

	// hookIndex is the hook's position in the whole config file, counted
	// across every repos[] entry; it is the default priority.
	hookIndex := -1
	for _, repo := range project.Config.Repos {
		for _, hook := range repo.Hooks {
			hookIndex++
			if !hook.MatchesAnyStage(project.Config.DefaultStages, opts.HookStages) {
				continue
			}
			spec := filter.Spec{
				FilesRe:      hook.Files,
				ExcludeRe:    hook.ExcludeRegex,
				Types:        hook.Types,
				TypesOr:      hook.TypesOr,
				ExcludeTypes: hook.ExcludeTypes,
			}
			matched, err := filter.Apply(regexCache, spec, projectFiles)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("project %s hook %s: %w", project.Root, hook.ID, err)
			}

			if len(matched) == 0 && !hook.AlwaysRun {
				continue
			}

			priority := uint32(hookIndex)
			if hook.Priority != nil {
				priority = *hook.Priority
			}

			passFiles := hook.PassesFilenames()
			var batches []chunk.Batch
			if passFiles {
				limit := opts.ChunkLimit
				if limit <= 0 {
					limit = chunk.DefaultLimit
				}
				batches = chunk.Split(matched, len(hook.Entry)+len(project.Root), limit)
			} else {
				batches = []chunk.Batch{{Files: nil, Index: 0}}
			}

			for _, batch := range batches {
				displayName := hook.Name
				if displayName == "" {
					displayName = hook.ID
				}
				if len(batches) > 1 {
					displayName = fmt.Sprintf("%s (%d/%d)", displayName, batch.Index+1, len(batches))
				}

				meta := &invocationMeta{
					displayName: displayName,
					projectPath: relProjPath,
					workDir:     project.Root,
					entry:       hook.Entry,
					args:        hook.Args,
					env:         hook.Env,
					files:       batch.Files,
					passFiles:   passFiles,
					logFile:     hook.LogFile,
					verbose:     opts.Verbose || hook.Verbose,
				}

				invocations = append(invocations, scheduler.Invocation{
					HookKey:       project.Root + ":" + hook.ID,
					Priority:      priority,
					RequireSerial: hook.RequireSerial,
					FailFast:      hook.FailFast,
					Exec:          execClosure(opts.Runner, meta),
				})
				candidates = append(candidates, selector.Candidate{ProjectPath: relProjPath, HookID: hook.ID})
				metas = append(metas, meta)
			}
		}
	}

	return invocations, candidates, metas, nil
}

func execClosure(r runner.Runner, meta *invocationMeta) func(context.Context) error {
	return func(ctx context.Context) error {
		result, err := r.Run(ctx, runner.Invocation{
			WorkDir:       meta.workDir,
			Entry:         meta.entry,
			Args:          meta.args,
			Env:           meta.env,
			Files:         meta.files,
			PassFilenames: meta.passFiles,
		})
		if err != nil {
			return err
		}
		meta.result = &result
		if result.ExitCode != 0 {
			return fmt.Errorf("%s: exit code %d", meta.displayName, result.ExitCode)
		}
		return nil
	}
}

func emitOutcome(agg *output.Aggregator, o scheduler.Outcome, meta *invocationMeta) {
	if agg == nil || meta == nil {
		return
	}
	inv := output.Invocation{
		ProjectPath: meta.projectPath,
		DisplayName: meta.displayName,
		Status:      output.FromSchedulerState(o.State),
		LogFile:     meta.logFile,
		Verbose:     meta.verbose,
	}
	if meta.result != nil {
		inv.Stdout = meta.result.Stdout
		inv.Stderr = meta.result.Stderr
		inv.DiffMutated = meta.result.DiffMutated
	}
	agg.Emit(inv)
}

func tagFiles(workspaceRoot string, files []string, cache *classify.Cache) ([]filter.TaggedPath, error) {
	tagged := make([]filter.TaggedPath, 0, len(files))
	for _, f := range files {
		info, err := classify.ReadInfo(workspaceRoot, f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		tagged = append(tagged, filter.TaggedPath{
			Path: filter.NormalizePath(f),
			Tags: classify.Classify(cache, f, info),
		})
	}
	return tagged, nil
}

func claimedFilesFor(project *workspace.Project, projects []*workspace.Project, workspaceRoot string, files []string) map[string]bool {
	claimed := make(map[string]bool)
	for _, f := range files {
		abs := filepath.Join(workspaceRoot, f)
		for _, claimant := range workspace.ClaimingProjects(abs, projects) {
			if claimant == project {
				claimed[f] = true
				break
			}
		}
	}
	return claimed
}

func subsetTagged(all []filter.TaggedPath, claimed map[string]bool) []filter.TaggedPath {
	var out []filter.TaggedPath
	for _, t := range all {
		if claimed[t.Path] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// applyProjectOuterFilter applies the project-level files/exclude filter
// (spec.md §4.3: "Project-level files/exclude act as an outer filter
// applied before hook-level filters"), with no type constraints of its
// own.
func applyProjectOuterFilter(cfg *config.Config, tagged []filter.TaggedPath, regexCache *filter.CompiledSet) ([]filter.TaggedPath, error) {
	if cfg.Files == "" && cfg.Exclude == "" {
		return tagged, nil
	}
	matched, err := filter.Apply(regexCache, filter.Spec{FilesRe: cfg.Files, ExcludeRe: cfg.Exclude}, tagged)
	if err != nil {
		return nil, fmt.Errorf("project-level files/exclude: %w", err)
	}
	matchedSet := make(map[string]bool, len(matched))
	for _, m := range matched {
		matchedSet[m] = true
	}
	var out []filter.TaggedPath
	for _, t := range tagged {
		if matchedSet[t.Path] {
			out = append(out, t)
		}
	}
	return out, nil
}

func relProjectPath(workspaceRoot, projectRoot string) string {
	rel, err := filepath.Rel(workspaceRoot, projectRoot)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}
