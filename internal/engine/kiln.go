// Package engine provides the core content build engine: the façade owning
// the worker-pool scheduler, build cache, content packer and event queue.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kiln/kiln/pkg/cache"
	"github.com/kiln/kiln/pkg/events"
	"github.com/kiln/kiln/pkg/interfaces"
	"github.com/kiln/kiln/pkg/logger"
	"github.com/kiln/kiln/pkg/packer"
	"github.com/kiln/kiln/pkg/registry"
	"github.com/kiln/kiln/pkg/types"
	"github.com/kiln/kiln/pkg/utils"
)

// Options configures a Kiln instance. Parallelism 0 means one worker per
// available core; the value is clamped to [1, cores] either way.
type Options struct {
	Parallelism int
	Logger      logger.Logger
	Deps        interfaces.Dependencies
}

// Kiln is the content build engine façade. It exposes Build and Clean as
// asynchronous operations and the consumer side of the event queue; the
// caller drains events on its own cadence while a handle runs.
type Kiln struct {
	project  *types.Project
	workers  int
	logger   logger.Logger
	queue    *events.Queue
	cache    interfaces.BuildCache
	registry interfaces.TransformRegistry
	packer   interfaces.ContentPacker
	notifier interfaces.BuildNotifier

	cancelled atomic.Bool

	mu      sync.Mutex
	active  bool
	pending *Handle
	wg      sync.WaitGroup
}

// New creates an engine for the given project. The project is owned by the
// engine for the duration of each operation and never mutated.
func New(project *types.Project, opts Options) (*Kiln, error) {
	if project == nil {
		return nil, fmt.Errorf("project is required")
	}
	if project.IntermediateRoot == "" || project.OutputRoot == "" {
		return nil, fmt.Errorf("project intermediate and output roots are required")
	}
	if opts.Parallelism < 0 {
		return nil, fmt.Errorf("invalid parallelism: %d", opts.Parallelism)
	}

	log := opts.Logger
	if log == nil {
		log = logger.CreateLogger("", "info")
	}

	buildCache := opts.Deps.Cache
	if buildCache == nil {
		c, err := cache.New(project.IntermediateRoot, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize build cache: %w", err)
		}
		buildCache = c
	}

	reg := opts.Deps.Registry
	if reg == nil {
		reg = registry.NewWithBuiltins()
	}

	pk := opts.Deps.Packer
	if pk == nil {
		pk = packer.New(project.OutputRoot, project.PackSizeLimit(), project.Properties.Compress)
	}

	return &Kiln{
		project:  project,
		workers:  clampWorkers(opts.Parallelism),
		logger:   log,
		queue:    events.NewQueue(uuid.New().String()),
		cache:    buildCache,
		registry: reg,
		packer:   pk,
		notifier: opts.Deps.Notifier,
	}, nil
}

// Workers returns the clamped worker count
func (k *Kiln) Workers() int {
	return k.workers
}

// Poll drains all pending events into the sink on the caller's goroutine
func (k *Kiln) Poll(sink events.Sink) int {
	return k.queue.Poll(sink)
}

// Build starts an asynchronous build. The returned handle must be started
// and then waited on or polled to completion. Only one operation may run
// at a time.
func (k *Kiln) Build(opts types.BuildOptions) (*Handle, error) {
	return k.launch(func() types.Outcome {
		return k.buildOp(opts)
	})
}

// Clean starts an asynchronous clean: every cache entry and every
// output/pack artifact of the project is removed.
func (k *Kiln) Clean() (*Handle, error) {
	return k.launch(k.cleanOp)
}

// Cancel requests cooperative cancellation. In-flight items finish their
// current stage; no new items are claimed.
func (k *Kiln) Cancel() {
	k.cancelled.Store(true)
}

// Close cancels any running operation and waits for it to wind down.
// A handle that was created but never started resolves as cancelled, so
// Close returns on all exit paths.
func (k *Kiln) Close() error {
	k.Cancel()

	k.mu.Lock()
	pending := k.pending
	k.mu.Unlock()
	if pending != nil {
		pending.abandon()
	}

	k.wg.Wait()
	return nil
}

// Private methods

func (k *Kiln) launch(op func() types.Outcome) (*Handle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.active {
		return nil, fmt.Errorf("an operation is already running")
	}
	k.active = true
	k.wg.Add(1)

	handle := newHandle(op, func() {
		k.mu.Lock()
		k.active = false
		k.pending = nil
		k.mu.Unlock()
		k.wg.Done()
	})
	k.pending = handle
	return handle, nil
}

func (k *Kiln) buildOp(opts types.BuildOptions) types.Outcome {
	start := time.Now()
	items := k.project.Items

	k.queue.BuildStart(opts.Rebuild, opts.Release, len(items))
	if k.notifier != nil {
		k.notifier.NotifyBuildStart(len(items))
	}

	sched := newScheduler(
		k.workers,
		k.project.IntermediateRoot,
		k.cache,
		k.registry,
		k.queue,
		k.logger,
		&k.cancelled,
	)
	res := sched.run(context.Background(), items, opts.Rebuild)

	itemBuildTime := time.Since(start)
	k.queue.BuildContinue(itemBuildTime)

	success := res.success()
	var packs []types.PackDescriptor

	// Packing reads outputs that must all exist, so it never runs for a
	// cancelled pass.
	if !res.cancelled {
		packs, success = k.packOutputs(res, opts, success)

		if opts.CollectStats {
			k.emitStats(res)
		}
	}

	status := types.BuildStatusSucceeded
	switch {
	case res.cancelled:
		status = types.BuildStatusCancelled
	case !success:
		status = types.BuildStatusFailed
	}

	total := time.Since(start)
	k.queue.BuildEnd(status == types.BuildStatusSucceeded, res.cancelled, total,
		res.finished, res.skipped, res.failed)

	if k.notifier != nil {
		if status == types.BuildStatusSucceeded {
			k.notifier.NotifyBuildSuccess(total, res.finished, res.skipped)
		} else if status == types.BuildStatusFailed {
			k.notifier.NotifyBuildFailure(res.failed)
		}
	}

	return types.Outcome{
		Status:        status,
		Finished:      res.finished,
		Skipped:       res.skipped,
		Failed:        res.failed,
		ItemBuildTime: itemBuildTime,
		TotalTime:     total,
		Packs:         packs,
	}
}

// packOutputs places every non-failed output: aggregated into packs for
// release, individually for debug. Skipped items contribute their cached
// outputs so artifacts stay complete and unchanged rebuilds stay
// byte-identical.
func (k *Kiln) packOutputs(res runResult, opts types.BuildOptions, success bool) ([]types.PackDescriptor, bool) {
	inputs := k.packInputs(res)

	if opts.Release {
		packs, err := k.packer.Pack(inputs)
		if err != nil {
			k.queue.EngineError("failed to write content packs", err)
			return packs, false
		}
		for _, pack := range packs {
			for _, itemPath := range pack.Items {
				k.queue.ItemPacked(itemPath, pack.Number)
			}
		}
		return packs, success
	}

	if err := k.packer.WriteLoose(inputs); err != nil {
		k.queue.EngineError("failed to write outputs", err)
		return nil, false
	}
	for _, in := range inputs {
		k.queue.ItemPacked(in.ItemPath, 0)
	}
	return nil, success
}

// packInputs collects non-failed outputs in project item order, which keeps
// pack assignment deterministic regardless of worker interleaving.
func (k *Kiln) packInputs(res runResult) []packer.Input {
	byPath := make(map[string]itemResult, len(res.items))
	for _, r := range res.items {
		byPath[r.item.Path] = r
	}

	var inputs []packer.Input
	for _, item := range k.project.Items {
		r, ok := byPath[item.Path]
		if !ok || r.state == terminalFailed || r.output.Path == "" {
			continue
		}
		inputs = append(inputs, packer.Input{
			ItemPath: item.Path,
			File:     filepathJoinSlash(k.project.IntermediateRoot, r.output.Path),
			Size:     r.output.Size,
		})
	}
	return inputs
}

func (k *Kiln) emitStats(res runResult) {
	for _, r := range res.items {
		if r.state == terminalFailed || r.output.Path == "" {
			continue
		}
		sourceSize, err := utils.GetFileSize(r.item.SourcePath)
		if err != nil {
			sourceSize = 0
		}
		k.queue.ItemStats(r.item.Path, sourceSize, r.output.Size, r.duration)
	}
}

// cleanOp removes every cache entry and every artifact. Single-threaded:
// clean is I/O-bound deletion with no transform work to parallelize.
func (k *Kiln) cleanOp() types.Outcome {
	start := time.Now()
	k.queue.CleanStart()

	success := true
	itemPaths := make([]string, 0, len(k.project.Items))

	for _, item := range k.project.Items {
		itemPaths = append(itemPaths, item.Path)

		if err := k.cache.Remove(item.Path); err != nil {
			k.queue.EngineWarn(fmt.Sprintf("failed to remove cache entry for %s", item.Path), err)
		}
		if err := utils.RemoveFile(filepathJoinSlash(k.project.IntermediateRoot, "obj/"+item.Path)); err != nil {
			k.queue.EngineWarn(fmt.Sprintf("failed to remove intermediate output for %s", item.Path), err)
		}

		k.queue.ItemSkipped(item.Path, 0, "cleaned")
	}

	if err := k.packer.RemoveArtifacts(itemPaths); err != nil {
		k.queue.EngineError("failed to remove output artifacts", err)
		success = false
	}
	if err := k.cache.Clear(); err != nil {
		k.queue.EngineError("failed to clear build cache", err)
		success = false
	}
	if err := utils.RemoveAll(filepath.Join(k.project.IntermediateRoot, "obj")); err != nil {
		k.queue.EngineWarn("failed to remove intermediate directory", err)
	}

	total := time.Since(start)
	k.queue.CleanEnd(success, total)

	status := types.BuildStatusSucceeded
	if !success {
		status = types.BuildStatusFailed
	}

	return types.Outcome{
		Status:    status,
		Skipped:   len(k.project.Items),
		TotalTime: total,
	}
}

// filepathJoinSlash joins a root with a slash-relative path from a cache
// entry or output descriptor.
func filepathJoinSlash(root, slashPath string) string {
	return filepath.Join(root, filepath.FromSlash(slashPath))
}
