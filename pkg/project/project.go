// Package project handles content project loading and validation
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kiln/kiln/pkg/registry"
	"github.com/kiln/kiln/pkg/types"
)

// Manager handles project file operations
type Manager struct{}

// NewManager creates a new project manager
func NewManager() *Manager {
	return &Manager{}
}

// Load reads a project file (JSON or YAML), resolves its roots relative to
// the file's directory and validates it.
func (m *Manager) Load(path string) (*types.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	project, err := m.Parse(data)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	m.resolveRoots(project, filepath.Dir(absPath))

	if err := m.Validate(project); err != nil {
		return nil, err
	}
	m.resolveSources(project)
	m.applyDefaults(project)
	return project, nil
}

// Parse decodes raw project bytes without resolving paths
func (m *Manager) Parse(data []byte) (*types.Project, error) {
	var project types.Project

	// Try JSON first
	if err := json.Unmarshal(data, &project); err == nil {
		return &project, nil
	}

	// Try YAML
	if err := yaml.Unmarshal(data, &project); err == nil {
		return &project, nil
	}

	return nil, fmt.Errorf("failed to parse project as JSON or YAML")
}

// Validate checks a project for structural problems
func (m *Manager) Validate(project *types.Project) error {
	if len(project.Items) == 0 {
		return fmt.Errorf("no content items defined")
	}
	if project.Properties.PackSize < 0 {
		return fmt.Errorf("invalid pack size: %d", project.Properties.PackSize)
	}

	itemPaths := make(map[string]bool)
	for i, item := range project.Items {
		if err := m.validateItem(item); err != nil {
			if item.Path != "" {
				return fmt.Errorf("item '%s': %w", item.Path, err)
			}
			return fmt.Errorf("item %d: %w", i, err)
		}

		// Item paths double as cache keys and pack member names
		if itemPaths[item.Path] {
			return fmt.Errorf("duplicate item path: %s", item.Path)
		}
		itemPaths[item.Path] = true
	}

	return nil
}

// Default returns a starter project layout
func (m *Manager) Default() *types.Project {
	return &types.Project{
		ContentRoot:      "content",
		IntermediateRoot: "obj",
		OutputRoot:       "bin",
		Properties: types.ProjectProperties{
			PackSize: types.DefaultPackSize,
		},
	}
}

// Private methods

// resolveRoots anchors relative roots at the project file's directory, with
// sibling defaults when a root is unset.
func (m *Manager) resolveRoots(project *types.Project, baseDir string) {
	if project.ContentRoot == "" {
		project.ContentRoot = "content"
	}
	if project.IntermediateRoot == "" {
		project.IntermediateRoot = "obj"
	}
	if project.OutputRoot == "" {
		project.OutputRoot = "bin"
	}

	project.ContentRoot = absJoin(baseDir, project.ContentRoot)
	project.IntermediateRoot = absJoin(baseDir, project.IntermediateRoot)
	project.OutputRoot = absJoin(baseDir, project.OutputRoot)
}

// resolveSources fills each item's source path from the content root when
// the project file does not set one explicitly.
func (m *Manager) resolveSources(project *types.Project) {
	for i := range project.Items {
		item := &project.Items[i]
		if item.SourcePath == "" {
			item.SourcePath = filepath.Join(project.ContentRoot, filepath.FromSlash(item.Path))
		} else {
			item.SourcePath = absJoin(project.ContentRoot, item.SourcePath)
		}
	}
}

// applyDefaults folds project-level settings into per-item args, so the
// pipeline (and the cache fingerprint) only ever sees the effective values.
// Item-level args always win.
func (m *Manager) applyDefaults(project *types.Project) {
	// Ordered param overrides: a later entry replaces an earlier one with
	// the same name
	params := make(map[string]string, len(project.Params))
	for _, p := range project.Params {
		params[p.Name] = p.Value
	}

	for i := range project.Items {
		item := &project.Items[i]

		for name, value := range params {
			if _, ok := item.ProcessorArgs[name]; ok {
				continue
			}
			if item.ProcessorArgs == nil {
				item.ProcessorArgs = make(map[string]string)
			}
			item.ProcessorArgs[name] = value
		}

		// Comments are stripped unless the project opts in to keeping them
		if !project.Properties.IncludeComments && item.Importer == registry.ImporterText {
			if _, ok := item.ImporterArgs["strip-comments"]; !ok {
				if item.ImporterArgs == nil {
					item.ImporterArgs = make(map[string]string)
				}
				item.ImporterArgs["strip-comments"] = "true"
			}
		}
	}
}

func (m *Manager) validateItem(item types.ContentItem) error {
	if item.Path == "" {
		return fmt.Errorf("missing path")
	}
	if filepath.IsAbs(item.Path) || strings.HasPrefix(item.Path, "/") {
		return fmt.Errorf("item path must be relative: %s", item.Path)
	}
	for _, part := range strings.Split(item.Path, "/") {
		if part == ".." {
			return fmt.Errorf("item path must not escape the project: %s", item.Path)
		}
	}
	if item.Importer == "" {
		return fmt.Errorf("missing importer")
	}
	if item.Processor == "" {
		return fmt.Errorf("missing processor")
	}
	return nil
}

func absJoin(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
