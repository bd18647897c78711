// Package chunk implements the Command Chunker (spec.md §4.6, component
// C6): splitting a hook's file batch into sub-batches that each fit
// under a platform command-length budget, without ever splitting a
// single file across chunks.
package chunk

import "runtime"

// DefaultLimit is a conservative argv-byte budget, well under the
// platform minimum (Linux's MAX_ARG_STRLEN-driven effective limit is
// far higher; Windows' CreateProcess command-line limit is the binding
// constraint at roughly 32KB). Kept deliberately small relative to both
// so the chunker exercises its packing logic on realistic file counts
// rather than only in synthetic tests.
const DefaultLimit = 1 << 14 // 16384 bytes

// perArgOverhead approximates the shell-level cost of each argv entry
// beyond its raw byte length: a separating space plus potential quoting.
const perArgOverhead = 3

// Batch is one chunk: the files it carries. Index is the chunk's
// position among its siblings, for labeling ("hook (2/3)").
type Batch struct {
	Files []string
	Index int
}

// Split partitions files into chunks whose estimated command size (the
// sum of fixedPrefixBytes plus each file's length and per-arg overhead)
// is at most limit, packing greedily in input order so files are never
// reordered or split. A single file whose cost alone exceeds limit gets
// a chunk of its own, which is then over limit. A limit of 0 uses
// DefaultLimit.
//
// If there are no files, Split returns a single empty batch: spec.md
// §4.6 doesn't need the chunker invoked at all when pass_filenames=false
// or always_run fired with zero matches, but callers that do invoke it
// with an empty batch get back exactly one invocation, not zero.
func Split(files []string, fixedPrefixBytes, limit int) []Batch {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(files) == 0 {
		return []Batch{{Files: nil, Index: 0}}
	}

	var batches []Batch
	var current []string
	size := fixedPrefixBytes

	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Batch{Files: current, Index: len(batches)})
		current = nil
		size = fixedPrefixBytes
	}

	for _, f := range files {
		cost := len(f) + perArgOverhead
		if len(current) > 0 && size+cost > limit {
			flush()
		}
		current = append(current, f)
		size += cost
	}
	flush()
	return batches
}

// SplitSerial is Split for a require_serial hook: identical chunking,
// but the returned batches carry no concurrency guarantee on their own —
// spec.md §4.6 puts the one-at-a-time constraint on the scheduler, not
// the chunker, so this is only a documentation-level distinction. Kept
// as a separate entry point so call sites reads as "this hook's chunks
// are sequential" without the scheduler needing to re-derive that from
// hook config at the call site.
func SplitSerial(files []string, fixedPrefixBytes, limit int) []Batch {
	return Split(files, fixedPrefixBytes, limit)
}

// DefaultConcurrency returns the default global concurrency limit C from
// spec.md §4.7: the number of logical CPUs.
func DefaultConcurrency() int {
	return runtime.NumCPU()
}
