package packer_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiln/kiln/pkg/packer"
	"github.com/kiln/kiln/pkg/types"
)

func makeInput(t *testing.T, dir, itemPath string, size int) packer.Input {
	t.Helper()
	file := filepath.Join(dir, strings.ReplaceAll(itemPath, "/", "_"))
	if err := os.WriteFile(file, bytes.Repeat([]byte{'x'}, size), 0644); err != nil {
		t.Fatal(err)
	}
	return packer.Input{ItemPath: itemPath, File: file, Size: int64(size)}
}

func TestGreedyPackAssignment(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bin")
	p := packer.New(out, 1000, false)

	inputs := []packer.Input{
		makeInput(t, dir, "item1", 400),
		makeInput(t, dir, "item2", 400),
		makeInput(t, dir, "item3", 400),
	}

	packs, err := p.Pack(inputs)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(packs) != 2 {
		t.Fatalf("expected 2 packs, got %d", len(packs))
	}

	if packs[0].Number != 1 || packs[0].Size != 800 {
		t.Errorf("pack 1 = %+v, want size 800", packs[0])
	}
	if len(packs[0].Items) != 2 || packs[0].Items[0] != "item1" || packs[0].Items[1] != "item2" {
		t.Errorf("pack 1 items = %v", packs[0].Items)
	}
	if packs[1].Number != 2 || packs[1].Size != 400 || len(packs[1].Items) != 1 {
		t.Errorf("pack 2 = %+v", packs[1])
	}
}

func TestOversizedItemGetsOwnPack(t *testing.T) {
	dir := t.TempDir()
	p := packer.New(filepath.Join(dir, "bin"), 100, false)

	inputs := []packer.Input{
		makeInput(t, dir, "small", 50),
		makeInput(t, dir, "huge", 500),
		makeInput(t, dir, "tail", 50),
	}

	packs, err := p.Pack(inputs)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(packs) != 3 {
		t.Fatalf("expected 3 packs, got %d: %+v", len(packs), packs)
	}
	if packs[1].Items[0] != "huge" || packs[1].Size != 500 {
		t.Errorf("oversized item not isolated: %+v", packs[1])
	}

	// Every input appears in exactly one pack
	seen := map[string]int{}
	for _, pk := range packs {
		for _, item := range pk.Items {
			seen[item]++
		}
	}
	for _, in := range inputs {
		if seen[in.ItemPath] != 1 {
			t.Errorf("item %s appears %d times", in.ItemPath, seen[in.ItemPath])
		}
	}
}

func TestPackArchiveContents(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bin")
	p := packer.New(out, 1<<20, true)

	in := makeInput(t, dir, "text/intro.txt", 64)
	packs, err := p.Pack([]packer.Input{in})
	if err != nil {
		t.Fatal(err)
	}

	r, err := zip.OpenReader(packs[0].Path)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer r.Close()

	if len(r.File) != 1 {
		t.Fatalf("expected 1 member, got %d", len(r.File))
	}
	member := r.File[0]
	if member.Name != "text/intro.txt" {
		t.Errorf("member name = %s", member.Name)
	}
	if member.Method != zip.Deflate {
		t.Errorf("expected deflate compression, got method %d", member.Method)
	}

	rc, err := member.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 64 {
		t.Errorf("member content length = %d, want 64", buf.Len())
	}
}

func TestPackIdempotence(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bin")
	p := packer.New(out, 1000, true)

	inputs := []packer.Input{
		makeInput(t, dir, "a", 100),
		makeInput(t, dir, "b", 200),
	}

	packs, err := p.Pack(inputs)
	if err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(packs[0].Path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Pack(inputs); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(packs[0].Path)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("repacking unchanged inputs produced different bytes")
	}
}

func TestWriteLoose(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bin")
	p := packer.New(out, 1000, false)

	in := makeInput(t, dir, "audio/theme.ogg", 32)
	if err := p.WriteLoose([]packer.Input{in}); err != nil {
		t.Fatalf("WriteLoose: %v", err)
	}

	dst := filepath.Join(out, "audio", "theme.ogg")
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("loose output missing: %v", err)
	}
	if info.Size() != 32 {
		t.Errorf("loose output size = %d", info.Size())
	}
}

func TestRemoveArtifacts(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "bin")
	p := packer.New(out, 200, false)

	inputs := []packer.Input{
		makeInput(t, dir, "a", 100),
		makeInput(t, dir, "b", 150),
	}
	if _, err := p.Pack(inputs); err != nil {
		t.Fatal(err)
	}
	if err := p.WriteLoose(inputs); err != nil {
		t.Fatal(err)
	}

	if err := p.RemoveArtifacts([]string{"a", "b"}); err != nil {
		t.Fatalf("RemoveArtifacts: %v", err)
	}

	remaining, err := filepath.Glob(filepath.Join(out, "content_*.kpack"))
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("packs left behind: %v", remaining)
	}
	if _, err := os.Stat(filepath.Join(out, "a")); !os.IsNotExist(err) {
		t.Error("loose output a left behind")
	}
}

func TestEmptyPackRun(t *testing.T) {
	p := packer.New(filepath.Join(t.TempDir(), "bin"), 1000, false)
	packs, err := p.Pack(nil)
	if err != nil {
		t.Fatalf("Pack(nil): %v", err)
	}
	if len(packs) != 0 {
		t.Errorf("expected no packs, got %+v", packs)
	}
	var _ []types.PackDescriptor = packs
}
