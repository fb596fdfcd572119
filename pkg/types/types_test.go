package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kiln/kiln/pkg/types"
)

func TestPackSizeLimitDefault(t *testing.T) {
	p := &types.Project{}
	if got := p.PackSizeLimit(); got != types.DefaultPackSize {
		t.Errorf("expected default pack size %d, got %d", types.DefaultPackSize, got)
	}

	p.Properties.PackSize = 1000
	if got := p.PackSizeLimit(); got != 1000 {
		t.Errorf("expected configured pack size 1000, got %d", got)
	}
}

func TestProjectItemLookup(t *testing.T) {
	p := &types.Project{
		Items: []types.ContentItem{
			{Path: "textures/hero.png", Importer: "bytes", Processor: "passthrough"},
			{Path: "text/intro.txt", Importer: "text", Processor: "passthrough"},
		},
	}

	item, ok := p.Item("text/intro.txt")
	if !ok {
		t.Fatal("expected to find text/intro.txt")
	}
	if item.Importer != "text" {
		t.Errorf("expected importer text, got %s", item.Importer)
	}

	if _, ok := p.Item("missing"); ok {
		t.Error("expected lookup miss for unknown path")
	}
}

func TestOutcomeSucceeded(t *testing.T) {
	tests := []struct {
		status types.BuildStatus
		want   bool
	}{
		{types.BuildStatusSucceeded, true},
		{types.BuildStatusFailed, false},
		{types.BuildStatusCancelled, false},
	}

	for _, tt := range tests {
		o := types.Outcome{Status: tt.status}
		if o.Succeeded() != tt.want {
			t.Errorf("Succeeded() for %s = %v, want %v", tt.status, o.Succeeded(), tt.want)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	o := types.Outcome{
		Status:    types.BuildStatusFailed,
		Finished:  2,
		Skipped:   1,
		Failed:    1,
		TotalTime: 1500 * time.Millisecond,
	}

	want := "failed: 2 finished, 1 skipped, 1 failed in 1.5s"
	if got := o.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	p := types.Project{
		ContentRoot:      "/proj/content",
		IntermediateRoot: "/proj/obj",
		OutputRoot:       "/proj/bin",
		Properties:       types.ProjectProperties{Compress: true, PackSize: 4096},
		Items: []types.ContentItem{
			{
				Path:         "audio/theme.ogg",
				SourcePath:   "/proj/content/audio/theme.ogg",
				Importer:     "bytes",
				Processor:    "passthrough",
				ImporterArgs: map[string]string{"buffer": "64k"},
			},
		},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back types.Project
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.Items[0].ImporterArgs["buffer"] != "64k" {
		t.Error("importer args lost in round trip")
	}
	if !back.Properties.Compress || back.Properties.PackSize != 4096 {
		t.Error("properties lost in round trip")
	}
}
