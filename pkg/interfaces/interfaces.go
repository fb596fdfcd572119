// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"time"

	"github.com/kiln/kiln/pkg/cache"
	"github.com/kiln/kiln/pkg/packer"
	"github.com/kiln/kiln/pkg/registry"
	"github.com/kiln/kiln/pkg/types"
)

// BuildCache decides whether items need rebuilding and records successes
type BuildCache interface {
	ShouldBuild(item types.ContentItem) bool
	Fresh(item types.ContentItem) (cache.Entry, bool)
	Commit(item types.ContentItem, output types.OutputDescriptor) error
	Remove(itemPath string) error
	Clear() error
	Count() int
}

// TransformRegistry resolves importers and processors by name
type TransformRegistry interface {
	Importer(name string) (registry.ImporterFunc, error)
	Processor(name string) (registry.ProcessorFunc, error)
}

// ContentPacker places finished outputs under the output root
type ContentPacker interface {
	Pack(inputs []packer.Input) ([]types.PackDescriptor, error)
	WriteLoose(inputs []packer.Input) error
	RemoveArtifacts(itemPaths []string) error
}

// BuildNotifier surfaces operation results outside the event stream
type BuildNotifier interface {
	NotifyBuildStart(itemCount int)
	NotifyBuildSuccess(duration time.Duration, finished, skipped int)
	NotifyBuildFailure(failed int)
}

// Dependencies contains the injectable collaborators of the engine.
// Nil fields fall back to concrete defaults at construction.
type Dependencies struct {
	Cache    BuildCache
	Registry TransformRegistry
	Packer   ContentPacker
	Notifier BuildNotifier
}
