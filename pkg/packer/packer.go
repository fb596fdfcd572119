// Package packer aggregates processed item outputs into size-bounded
// content packs for release builds, or places them individually for debug
// builds. It runs strictly after the scheduler: every input file must
// already exist.
package packer

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kiln/kiln/pkg/types"
	"github.com/kiln/kiln/pkg/utils"
)

// PackFilePattern names sealed packs under the output root
const PackFilePattern = "content_%d.kpack"

// Fixed member timestamp so unchanged inputs produce byte-identical packs
var packEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Input is one finished item output to place. File points at the processed
// bytes under the intermediate root; Size is their uncompressed size, which
// is what the pack limit is measured against.
type Input struct {
	ItemPath string
	File     string
	Size     int64
}

// Packer writes content packs or loose outputs under the output root
type Packer struct {
	outputRoot string
	limit      int64
	compress   bool
}

// New creates a packer. limit is the soft per-pack byte ceiling.
func New(outputRoot string, limit int64, compress bool) *Packer {
	return &Packer{
		outputRoot: outputRoot,
		limit:      limit,
		compress:   compress,
	}
}

// Pack assigns the inputs to packs in order and seals each pack to disk.
// An input joins the current pack while the accumulated size stays within
// the limit; otherwise the current pack seals and a new one starts. An
// input larger than the limit by itself still gets a pack of its own: the
// limit is a soft ceiling, never a per-item cap. The final pack seals even
// when under the limit.
func (p *Packer) Pack(inputs []Input) ([]types.PackDescriptor, error) {
	if err := utils.EnsureDirectory(p.outputRoot); err != nil {
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}

	var packs []types.PackDescriptor
	var current *types.PackDescriptor
	var members []Input

	seal := func() error {
		if current == nil {
			return nil
		}
		if err := p.seal(current, members); err != nil {
			return err
		}
		packs = append(packs, *current)
		current = nil
		members = nil
		return nil
	}

	for _, in := range inputs {
		if current != nil && current.Size+in.Size > p.limit {
			if err := seal(); err != nil {
				return packs, err
			}
		}
		if current == nil {
			current = &types.PackDescriptor{
				Number: len(packs) + 1,
				Path:   filepath.Join(p.outputRoot, fmt.Sprintf(PackFilePattern, len(packs)+1)),
			}
		}
		current.Size += in.Size
		current.Items = append(current.Items, in.ItemPath)
		members = append(members, in)
	}

	if err := seal(); err != nil {
		return packs, err
	}
	return packs, nil
}

// WriteLoose places each input individually at <outputRoot>/<item path>
func (p *Packer) WriteLoose(inputs []Input) error {
	for _, in := range inputs {
		dst := filepath.Join(p.outputRoot, filepath.FromSlash(in.ItemPath))
		if err := utils.CopyFile(in.File, dst); err != nil {
			return fmt.Errorf("failed to write output for %s: %w", in.ItemPath, err)
		}
	}
	return nil
}

// RemoveArtifacts deletes every pack file and loose output for the given
// items from the output root. Used by Clean.
func (p *Packer) RemoveArtifacts(itemPaths []string) error {
	matches, err := filepath.Glob(filepath.Join(p.outputRoot, "content_*.kpack"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := utils.RemoveFile(m); err != nil {
			return err
		}
	}

	for _, itemPath := range itemPaths {
		if err := utils.RemoveFile(filepath.Join(p.outputRoot, filepath.FromSlash(itemPath))); err != nil {
			return err
		}
	}
	return nil
}

// Private methods

// seal writes one pack atomically: members stream into a temp archive which
// then renames into place.
func (p *Packer) seal(desc *types.PackDescriptor, members []Input) error {
	tempPath := desc.Path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create pack %d: %w", desc.Number, err)
	}

	zw := zip.NewWriter(file)
	for _, in := range members {
		method := zip.Store
		if p.compress {
			method = zip.Deflate
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     in.ItemPath,
			Method:   method,
			Modified: packEpoch,
		})
		if err == nil {
			err = copyInto(w, in.File)
		}
		if err != nil {
			zw.Close()
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to add %s to pack %d: %w", in.ItemPath, desc.Number, err)
		}
	}

	if err := zw.Close(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize pack %d: %w", desc.Number, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close pack %d: %w", desc.Number, err)
	}

	if err := os.Rename(tempPath, desc.Path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to seal pack %d: %w", desc.Number, err)
	}
	return nil
}

func copyInto(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(w, file)
	return err
}
