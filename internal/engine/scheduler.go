package engine

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiln/kiln/pkg/events"
	"github.com/kiln/kiln/pkg/interfaces"
	"github.com/kiln/kiln/pkg/logger"
	"github.com/kiln/kiln/pkg/types"
	"github.com/kiln/kiln/pkg/utils"
)

// terminalState is the stage an item ended in
type terminalState int

const (
	terminalFinished terminalState = iota
	terminalSkipped
	terminalFailed
)

// itemResult records how one item ended and, for non-failed items, where
// its processed output lives (slash path relative to the intermediate root).
type itemResult struct {
	item     types.ContentItem
	state    terminalState
	output   types.OutputDescriptor
	duration time.Duration
}

// runResult aggregates a scheduler pass
type runResult struct {
	finished  int
	skipped   int
	failed    int
	cancelled bool
	items     []itemResult
}

func (r *runResult) success() bool {
	return r.failed == 0 && !r.cancelled
}

// scheduler owns the worker pool. Workers claim items from the shared work
// list, drive each through import/process/write, consult the cache first
// and report every transition through the event queue.
type scheduler struct {
	workers          int
	intermediateRoot string
	cache            interfaces.BuildCache
	registry         interfaces.TransformRegistry
	queue            *events.Queue
	logger           logger.Logger
	cancelled        *atomic.Bool

	mu      sync.Mutex
	results []itemResult
}

// clampWorkers bounds a requested parallelism to [1, available cores].
// Zero requests every core.
func clampWorkers(requested int) int {
	cores := runtime.NumCPU()
	if requested <= 0 || requested > cores {
		return cores
	}
	return requested
}

func newScheduler(
	workers int,
	intermediateRoot string,
	buildCache interfaces.BuildCache,
	reg interfaces.TransformRegistry,
	queue *events.Queue,
	log logger.Logger,
	cancelled *atomic.Bool,
) *scheduler {
	return &scheduler{
		workers:          workers,
		intermediateRoot: intermediateRoot,
		cache:            buildCache,
		registry:         reg,
		queue:            queue,
		logger:           log,
		cancelled:        cancelled,
	}
}

// run drives all items to a terminal stage and aggregates the outcome.
// Item order in the work list is project order, so pack assignment stays
// deterministic downstream.
func (s *scheduler) run(ctx context.Context, items []types.ContentItem, forceRebuild bool) runResult {
	list := newWorkList(items)

	g, _ := NewSafeGroup(ctx, s.logger)
	for lane := 0; lane < s.workers; lane++ {
		lane := lane
		g.Go(func() error {
			s.workerLoop(list, lane, forceRebuild)
			return nil
		})
	}

	// Worker loops recover their own item panics; a non-nil error here
	// means the loop itself died, which counts like a failed lane.
	if err := g.Wait(); err != nil && s.logger != nil {
		s.logger.Error("worker pool terminated abnormally", logger.WithField("error", err))
	}

	var res runResult
	s.mu.Lock()
	res.items = s.results
	s.mu.Unlock()

	for _, r := range res.items {
		switch r.state {
		case terminalFinished:
			res.finished++
		case terminalSkipped:
			res.skipped++
		case terminalFailed:
			res.failed++
		}
	}
	res.cancelled = s.cancelled.Load()
	return res
}

// workerLoop claims and executes items until the list drains or
// cancellation is requested.
func (s *scheduler) workerLoop(list *workList, lane int, forceRebuild bool) {
	for {
		if s.cancelled.Load() {
			return
		}
		task, ok := list.claim(lane)
		if !ok {
			return
		}
		s.record(s.runTask(task, forceRebuild))
	}
}

func (s *scheduler) record(r itemResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

// runTask drives one item through the stage machine: Started → Importing →
// Processing → Writing → {Finished, Failed}, or Skipped before Started when
// the cache says the item is unchanged. Cancellation between stages ends
// the item without a partial write.
func (s *scheduler) runTask(task *BuildTask, forceRebuild bool) itemResult {
	item := task.Item

	if !forceRebuild && !s.cache.ShouldBuild(item) {
		s.queue.ItemSkipped(item.Path, task.Lane, "up to date")
		output := types.OutputDescriptor{}
		if entry, ok := s.cache.Fresh(item); ok {
			output = entry.Output
		}
		return itemResult{item: item, state: terminalSkipped, output: output}
	}

	start := time.Now()
	s.queue.ItemStarted(item.Path, task.Lane)

	// Importing
	s.queue.ItemContinued(item.Path, task.Lane, types.StageImporting)
	raw, err := s.importItem(item)
	if err != nil {
		s.queue.ItemFailed(item.Path, task.Lane, types.StageImporting, err)
		return itemResult{item: item, state: terminalFailed}
	}

	if s.cancelled.Load() {
		s.queue.ItemSkipped(item.Path, task.Lane, "cancelled")
		return itemResult{item: item, state: terminalSkipped}
	}

	// Processing
	s.queue.ItemContinued(item.Path, task.Lane, types.StageProcessing)
	processed, err := s.processItem(item, raw)
	if err != nil {
		s.queue.ItemFailed(item.Path, task.Lane, types.StageProcessing, err)
		return itemResult{item: item, state: terminalFailed}
	}

	if s.cancelled.Load() {
		s.queue.ItemSkipped(item.Path, task.Lane, "cancelled")
		return itemResult{item: item, state: terminalSkipped}
	}

	// Writing
	s.queue.ItemContinued(item.Path, task.Lane, types.StageWriting)
	output, err := s.writeItem(item, processed)
	if err != nil {
		s.queue.ItemFailed(item.Path, task.Lane, types.StageWriting, err)
		return itemResult{item: item, state: terminalFailed}
	}

	// Cache staleness self-corrects on the next run, so a failed commit
	// downgrades to a warning instead of failing the item.
	if err := s.cache.Commit(item, output); err != nil {
		s.queue.EngineWarn(fmt.Sprintf("failed to record cache entry for %s", item.Path), err)
	}

	duration := time.Since(start)
	s.queue.ItemFinished(item.Path, task.Lane, duration)
	return itemResult{item: item, state: terminalFinished, output: output, duration: duration}
}

// importItem resolves and runs the importer; a panicking importer fails
// only its own item.
func (s *scheduler) importItem(item types.ContentItem) (data []byte, err error) {
	fn, err := s.registry.Importer(item.Importer)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("importer %s panicked: %v", item.Importer, r)
		}
	}()
	return fn(item.SourcePath, item.ImporterArgs)
}

func (s *scheduler) processItem(item types.ContentItem, raw []byte) (data []byte, err error) {
	fn, err := s.registry.Processor(item.Processor)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor %s panicked: %v", item.Processor, r)
		}
	}()
	return fn(raw, item.ProcessorArgs)
}

// writeItem lands the processed bytes under obj/<item path> in the
// intermediate root. The descriptor keeps the slash-relative path so cache
// entries survive a project relocation.
func (s *scheduler) writeItem(item types.ContentItem, processed []byte) (types.OutputDescriptor, error) {
	relPath := path.Join("obj", item.Path)
	absPath := filepathJoinSlash(s.intermediateRoot, relPath)

	if err := utils.WriteFileAtomic(absPath, processed); err != nil {
		return types.OutputDescriptor{}, fmt.Errorf("failed to write output: %w", err)
	}
	return types.OutputDescriptor{Path: relPath, Size: int64(len(processed))}, nil
}
