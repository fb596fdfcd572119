// Package types provides core types and configurations for Kiln
package types

import (
	"fmt"
	"time"
)

// ItemStage identifies the pipeline stage an item is passing through
type ItemStage string

const (
	StageImporting  ItemStage = "importing"
	StageProcessing ItemStage = "processing"
	StageWriting    ItemStage = "writing"
)

// BuildStatus represents the outcome of a build or clean operation
type BuildStatus string

const (
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ContentItem is one content asset entry in the project. Items are
// immutable after load; a single worker executes an item at a time while
// any number of events reference it read-only.
type ContentItem struct {
	Path          string            `json:"path" yaml:"path"`
	SourcePath    string            `json:"sourcePath" yaml:"sourcePath"`
	Importer      string            `json:"importer" yaml:"importer"`
	ImporterArgs  map[string]string `json:"importerArgs,omitempty" yaml:"importerArgs,omitempty"`
	Processor     string            `json:"processor" yaml:"processor"`
	ProcessorArgs map[string]string `json:"processorArgs,omitempty" yaml:"processorArgs,omitempty"`
}

// ParamOverride is an ordered project-level parameter override
type ParamOverride struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// ProjectProperties holds project-wide build switches
type ProjectProperties struct {
	Compress        bool  `json:"compress,omitempty" yaml:"compress,omitempty"`
	PackSize        int64 `json:"packSize,omitempty" yaml:"packSize,omitempty"`
	IncludeComments bool  `json:"includeComments,omitempty" yaml:"includeComments,omitempty"`
}

// Project is the fully-loaded content project. It is immutable for the
// duration of an engine operation; the engine never re-parses or mutates it.
type Project struct {
	ContentRoot      string            `json:"contentRoot" yaml:"contentRoot"`
	IntermediateRoot string            `json:"intermediateRoot" yaml:"intermediateRoot"`
	OutputRoot       string            `json:"outputRoot" yaml:"outputRoot"`
	Properties       ProjectProperties `json:"properties" yaml:"properties"`
	Params           []ParamOverride   `json:"params,omitempty" yaml:"params,omitempty"`
	Comments         []string          `json:"comments,omitempty" yaml:"comments,omitempty"`
	Items            []ContentItem     `json:"items" yaml:"items"`
}

// DefaultPackSize is used when a project does not set properties.packSize.
const DefaultPackSize int64 = 8 << 20

// PackSizeLimit returns the configured pack size, falling back to the default.
func (p *Project) PackSizeLimit() int64 {
	if p.Properties.PackSize > 0 {
		return p.Properties.PackSize
	}
	return DefaultPackSize
}

// Item returns the item with the given logical path, if present.
func (p *Project) Item(path string) (ContentItem, bool) {
	for _, item := range p.Items {
		if item.Path == path {
			return item, true
		}
	}
	return ContentItem{}, false
}

// BuildOptions selects the behavior of a single Build operation
type BuildOptions struct {
	Rebuild      bool `json:"rebuild" yaml:"rebuild"`
	Release      bool `json:"release" yaml:"release"`
	CollectStats bool `json:"collectStats" yaml:"collectStats"`
}

// OutputDescriptor records where an item's processed bytes landed
type OutputDescriptor struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// PackDescriptor describes one sealed content pack. Size is the sum of the
// uncompressed member sizes, which is what the pack limit is measured in.
type PackDescriptor struct {
	Number int      `json:"number"`
	Size   int64    `json:"size"`
	Items  []string `json:"items"`
	Path   string   `json:"path"`
}

// Outcome is the aggregated result of a build or clean operation
type Outcome struct {
	Status        BuildStatus      `json:"status"`
	Finished      int              `json:"finished"`
	Skipped       int              `json:"skipped"`
	Failed        int              `json:"failed"`
	ItemBuildTime time.Duration    `json:"itemBuildTime"`
	TotalTime     time.Duration    `json:"totalTime"`
	Packs         []PackDescriptor `json:"packs,omitempty"`
}

// Succeeded reports whether the operation completed without failures
// or cancellation.
func (o Outcome) Succeeded() bool {
	return o.Status == BuildStatusSucceeded
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s: %d finished, %d skipped, %d failed in %s",
		o.Status, o.Finished, o.Skipped, o.Failed, o.TotalTime.Round(time.Millisecond))
}
