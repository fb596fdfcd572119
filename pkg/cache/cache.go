// Package cache provides the persistent per-item build cache. One JSON
// entry file exists per item under the project's intermediate root,
// recording the fingerprint of the inputs that produced the item's last
// successful output. Item paths are unique, so each entry has exactly one
// writer and workers never contend.
package cache

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kiln/kiln/pkg/logger"
	"github.com/kiln/kiln/pkg/types"
	"github.com/kiln/kiln/pkg/utils"
)

// Entry is the persistent cache record for one item. An entry exists iff
// the item has ever built successfully.
type Entry struct {
	ItemPath    string                 `json:"itemPath"`
	Fingerprint string                 `json:"fingerprint"`
	BuiltAt     time.Time              `json:"builtAt"`
	Output      types.OutputDescriptor `json:"output"`
}

// Cache decides whether items need rebuilding and records successful builds
type Cache struct {
	root   string
	dir    string
	logger logger.Logger
}

// New creates a cache rooted under the given intermediate directory
func New(intermediateRoot string, log logger.Logger) (*Cache, error) {
	dir := filepath.Join(intermediateRoot, "cache")
	if err := utils.EnsureDirectory(dir); err != nil {
		return nil, err
	}
	return &Cache{root: intermediateRoot, dir: dir, logger: log}, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// ShouldBuild reports whether the item's inputs changed since its last
// successful build. Any error reading or fingerprinting degrades to "build
// it": cache corruption must never block a build.
func (c *Cache) ShouldBuild(item types.ContentItem) bool {
	entry, err := c.load(item.Path)
	if err != nil {
		if !os.IsNotExist(err) && c.logger != nil {
			c.logger.Debug("cache entry unreadable, forcing rebuild",
				logger.WithField("item", item.Path),
				logger.WithField("error", err))
		}
		return true
	}

	current, err := Fingerprint(item)
	if err != nil {
		return true
	}
	if current != entry.Fingerprint {
		return true
	}

	// A matching fingerprint is not enough: the recorded output must still
	// be on disk, or skipping would leave the build referencing a file that
	// no longer exists
	return !c.outputExists(entry)
}

// Fresh returns the item's entry when its fingerprint still matches.
// Used after a skip to locate the cached output.
func (c *Cache) Fresh(item types.ContentItem) (Entry, bool) {
	entry, err := c.load(item.Path)
	if err != nil {
		return Entry{}, false
	}
	current, err := Fingerprint(item)
	if err != nil || current != entry.Fingerprint {
		return Entry{}, false
	}
	if !c.outputExists(entry) {
		return Entry{}, false
	}
	return *entry, true
}

// Commit records a successful build of the item. Only the worker that just
// finished the item calls this, after its Write stage succeeded.
func (c *Cache) Commit(item types.ContentItem, output types.OutputDescriptor) error {
	fingerprint, err := Fingerprint(item)
	if err != nil {
		return err
	}

	entry := Entry{
		ItemPath:    item.Path,
		Fingerprint: fingerprint,
		BuiltAt:     time.Now(),
		Output:      output,
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(c.entryPath(item.Path), data)
}

// Remove deletes the entry for one item, ignoring missing entries
func (c *Cache) Remove(itemPath string) error {
	return utils.RemoveFile(c.entryPath(itemPath))
}

// Clear deletes every cache entry
func (c *Cache) Clear() error {
	if err := utils.RemoveAll(c.dir); err != nil {
		return err
	}
	return utils.EnsureDirectory(c.dir)
}

// Count returns the number of stored entries
func (c *Cache) Count() int {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}

	count := 0
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".json" {
			count++
		}
	}
	return count
}

// Private methods

func (c *Cache) entryPath(itemPath string) string {
	// Item paths contain separators; query-escape keeps the mapping flat,
	// deterministic and collision-free.
	return filepath.Join(c.dir, url.QueryEscape(itemPath)+".json")
}

// outputExists reports whether the entry's recorded output file is still
// present under the intermediate root.
func (c *Cache) outputExists(entry *Entry) bool {
	if entry.Output.Path == "" {
		return false
	}
	return utils.FileExists(filepath.Join(c.root, filepath.FromSlash(entry.Output.Path)))
}

func (c *Cache) load(itemPath string) (*Entry, error) {
	data, err := os.ReadFile(c.entryPath(itemPath))
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
