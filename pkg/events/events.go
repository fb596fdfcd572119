// Package events provides the thread-safe build event queue. Any number of
// worker goroutines emit structured progress records; exactly one consumer
// drains them with Poll on its own cadence, so workers never touch a shared
// output sink directly.
package events

import (
	"sync"
	"time"

	"github.com/kiln/kiln/pkg/types"
)

// Kind identifies the type of a build event
type Kind string

const (
	KindEngineInfo  Kind = "engine-info"
	KindEngineWarn  Kind = "engine-warn"
	KindEngineError Kind = "engine-error"

	KindBuildStart    Kind = "build-start"
	KindBuildContinue Kind = "build-continue"
	KindBuildEnd      Kind = "build-end"

	KindCleanStart Kind = "clean-start"
	KindCleanEnd   Kind = "clean-end"

	KindItemStarted   Kind = "item-started"
	KindItemContinued Kind = "item-continued"
	KindItemFinished  Kind = "item-finished"
	KindItemFailed    Kind = "item-failed"
	KindItemSkipped   Kind = "item-skipped"
	KindItemInfo      Kind = "item-info"
	KindItemWarn      Kind = "item-warn"
	KindItemError     Kind = "item-error"
	KindItemStats     Kind = "item-stats"
	KindItemPacked    Kind = "item-packed"
)

// Event is one immutable progress record. Only the fields relevant to the
// Kind are populated; the rest stay zero.
type Event struct {
	Kind      Kind
	Time      time.Time
	SessionID string

	Message  string
	ItemPath string
	Lane     int
	Stage    types.ItemStage
	Err      string

	Duration time.Duration
	Elapsed  time.Duration

	Pack int

	Rebuild   bool
	Release   bool
	Success   bool
	Cancelled bool

	Items    int
	Finished int
	Skipped  int
	Failed   int

	SourceSize int64
	OutputSize int64
}

// Sink receives drained events synchronously on the polling goroutine
type Sink interface {
	HandleEvent(ev Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ev Event)

// HandleEvent implements Sink
func (f SinkFunc) HandleEvent(ev Event) { f(ev) }

// Queue is a many-producer/one-consumer event queue. Emits append under a
// mutex; Poll swaps the pending slice out, so producers are never blocked
// by a slow consumer.
type Queue struct {
	mu        sync.Mutex
	pending   []Event
	sessionID string
}

// NewQueue creates an event queue tagged with the given operation session id
func NewQueue(sessionID string) *Queue {
	return &Queue{sessionID: sessionID}
}

// Poll atomically drains all currently queued events and dispatches each to
// the sink on the caller's goroutine, in enqueue order. Returns the number
// dispatched. A nil sink discards the drained events.
func (q *Queue) Poll(sink Sink) int {
	q.mu.Lock()
	drained := q.pending
	q.pending = nil
	q.mu.Unlock()

	if sink != nil {
		for _, ev := range drained {
			sink.HandleEvent(ev)
		}
	}
	return len(drained)
}

// Pending returns the number of events waiting to be polled
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) emit(ev Event) {
	ev.Time = time.Now()
	ev.SessionID = q.sessionID

	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()
}

// Engine-level events

// EngineInfo reports engine progress that is not tied to a single item
func (q *Queue) EngineInfo(message string) {
	q.emit(Event{Kind: KindEngineInfo, Message: message})
}

// EngineWarn reports a recoverable engine condition
func (q *Queue) EngineWarn(message string, err error) {
	q.emit(Event{Kind: KindEngineWarn, Message: message, Err: errText(err)})
}

// EngineError reports a condition that fails the overall operation
func (q *Queue) EngineError(message string, err error) {
	q.emit(Event{Kind: KindEngineError, Message: message, Err: errText(err)})
}

// Build lifecycle events

// BuildStart marks the beginning of a build operation
func (q *Queue) BuildStart(rebuild, release bool, itemCount int) {
	q.emit(Event{Kind: KindBuildStart, Rebuild: rebuild, Release: release, Items: itemCount})
}

// BuildContinue marks the point where all items reached a terminal stage
func (q *Queue) BuildContinue(itemBuildTime time.Duration) {
	q.emit(Event{Kind: KindBuildContinue, Elapsed: itemBuildTime})
}

// BuildEnd marks the end of a build operation
func (q *Queue) BuildEnd(success, cancelled bool, elapsed time.Duration, finished, skipped, failed int) {
	q.emit(Event{
		Kind: KindBuildEnd, Success: success, Cancelled: cancelled, Elapsed: elapsed,
		Finished: finished, Skipped: skipped, Failed: failed,
	})
}

// CleanStart marks the beginning of a clean operation
func (q *Queue) CleanStart() {
	q.emit(Event{Kind: KindCleanStart})
}

// CleanEnd marks the end of a clean operation
func (q *Queue) CleanEnd(success bool, elapsed time.Duration) {
	q.emit(Event{Kind: KindCleanEnd, Success: success, Elapsed: elapsed})
}

// Item lifecycle events

// ItemStarted fires once a worker claims an item
func (q *Queue) ItemStarted(itemPath string, lane int) {
	q.emit(Event{Kind: KindItemStarted, ItemPath: itemPath, Lane: lane})
}

// ItemContinued reports the stage an in-flight item entered
func (q *Queue) ItemContinued(itemPath string, lane int, stage types.ItemStage) {
	q.emit(Event{Kind: KindItemContinued, ItemPath: itemPath, Lane: lane, Stage: stage})
}

// ItemFinished reports a successful terminal stage with the build duration
func (q *Queue) ItemFinished(itemPath string, lane int, duration time.Duration) {
	q.emit(Event{Kind: KindItemFinished, ItemPath: itemPath, Lane: lane, Duration: duration})
}

// ItemFailed reports a failed terminal stage with the causing error
func (q *Queue) ItemFailed(itemPath string, lane int, stage types.ItemStage, err error) {
	q.emit(Event{Kind: KindItemFailed, ItemPath: itemPath, Lane: lane, Stage: stage, Err: errText(err)})
}

// ItemSkipped reports an item left untouched, with the reason
func (q *Queue) ItemSkipped(itemPath string, lane int, message string) {
	q.emit(Event{Kind: KindItemSkipped, ItemPath: itemPath, Lane: lane, Message: message})
}

// ItemInfo reports free-text per-item detail
func (q *Queue) ItemInfo(itemPath string, lane int, message string) {
	q.emit(Event{Kind: KindItemInfo, ItemPath: itemPath, Lane: lane, Message: message})
}

// ItemWarn reports a recoverable per-item condition
func (q *Queue) ItemWarn(itemPath string, lane int, message string) {
	q.emit(Event{Kind: KindItemWarn, ItemPath: itemPath, Lane: lane, Message: message})
}

// ItemError reports per-item error detail that did not fail the item
func (q *Queue) ItemError(itemPath string, lane int, err error) {
	q.emit(Event{Kind: KindItemError, ItemPath: itemPath, Lane: lane, Err: errText(err)})
}

// ItemStats reports size and timing figures for a built item
func (q *Queue) ItemStats(itemPath string, sourceSize, outputSize int64, duration time.Duration) {
	q.emit(Event{
		Kind: KindItemStats, ItemPath: itemPath,
		SourceSize: sourceSize, OutputSize: outputSize, Duration: duration,
	})
}

// ItemPacked reports the pack an item's output was assigned to.
// Pack 0 means the output was written individually (debug mode).
func (q *Queue) ItemPacked(itemPath string, pack int) {
	q.emit(Event{Kind: KindItemPacked, ItemPath: itemPath, Pack: pack})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
