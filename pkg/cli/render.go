package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/kiln/kiln/pkg/events"
	"github.com/kiln/kiln/pkg/types"
	"github.com/kiln/kiln/pkg/utils"
)

// renderer consumes engine events and prints progress lines. It runs on the
// CLI's polling goroutine, never on a worker.
type renderer struct {
	out     io.Writer
	verbose bool
}

func newRenderer(out io.Writer, verbose bool) *renderer {
	return &renderer{out: out, verbose: verbose}
}

// HandleEvent implements events.Sink
func (r *renderer) HandleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindBuildStart:
		mode := "debug"
		if ev.Release {
			mode = "release"
		}
		r.printf("🔥 %s Building %d items (%s)\n", color.CyanString("[Kiln]"), ev.Items, mode)

	case events.KindCleanStart:
		r.printf("🔥 %s Cleaning...\n", color.CyanString("[Kiln]"))

	case events.KindItemStarted:
		if r.verbose {
			r.printf("  %s %s\n", color.CyanString("»"), ev.ItemPath)
		}

	case events.KindItemContinued:
		if r.verbose {
			r.printf("  %s %s: %s\n", color.CyanString("»"), ev.ItemPath, ev.Stage)
		}

	case events.KindItemFinished:
		r.printf("  %s %s (%s)\n", color.GreenString("✓"), ev.ItemPath, formatElapsed(ev.Duration))

	case events.KindItemFailed:
		r.printf("  %s %s: %s (%s)\n", color.RedString("✗"), ev.ItemPath, ev.Err, ev.Stage)

	case events.KindItemSkipped:
		// Up-to-date skips are the common case on warm builds; keep them
		// out of the default output
		if r.verbose || ev.Message != "up to date" {
			r.printf("  %s %s (%s)\n", color.HiBlackString("-"), ev.ItemPath, ev.Message)
		}

	case events.KindItemPacked:
		if r.verbose && ev.Pack > 0 {
			r.printf("  %s %s → pack %d\n", color.CyanString("»"), ev.ItemPath, ev.Pack)
		}

	case events.KindItemStats:
		r.printf("  %s %s: %s → %s (%s)\n", color.CyanString("σ"), ev.ItemPath,
			utils.FormatBytes(ev.SourceSize), utils.FormatBytes(ev.OutputSize), formatElapsed(ev.Duration))

	case events.KindItemInfo:
		if r.verbose {
			r.printf("  %s %s: %s\n", color.CyanString("i"), ev.ItemPath, ev.Message)
		}

	case events.KindItemWarn:
		r.printf("  %s %s: %s\n", color.YellowString("!"), ev.ItemPath, ev.Message)

	case events.KindItemError:
		r.printf("  %s %s: %s\n", color.RedString("✗"), ev.ItemPath, ev.Err)

	case events.KindEngineInfo:
		if r.verbose {
			r.printf("🔥 %s %s\n", color.CyanString("[Kiln]"), ev.Message)
		}

	case events.KindEngineWarn:
		r.printf("🔥 %s %s: %s\n", color.YellowString("[Kiln]"), ev.Message, ev.Err)

	case events.KindEngineError:
		r.printf("🔥 %s %s: %s\n", color.RedString("[Kiln]"), ev.Message, ev.Err)
	}
}

// renderSummary prints the closing status line and, for builds, the result
// table plus any sealed packs.
func (r *renderer) renderSummary(outcome types.Outcome, clean bool) {
	r.printf("\n")

	switch outcome.Status {
	case types.BuildStatusSucceeded:
		if clean {
			r.printf("🔥 %s Clean finished in %s\n", color.GreenString("[Kiln]"), formatElapsed(outcome.TotalTime))
			return
		}
		r.printf("🔥 %s Build succeeded in %s\n", color.GreenString("[Kiln]"), formatElapsed(outcome.TotalTime))
	case types.BuildStatusCancelled:
		r.printf("🔥 %s Build cancelled after %s\n", color.YellowString("[Kiln]"), formatElapsed(outcome.TotalTime))
	default:
		if clean {
			r.printf("🔥 %s Clean failed\n", color.RedString("[Kiln]"))
			return
		}
		r.printf("🔥 %s Build failed after %s\n", color.RedString("[Kiln]"), formatElapsed(outcome.TotalTime))
	}

	r.printf("%s\n", renderTable(
		[]string{"BUILT", "UP TO DATE", "FAILED", "ITEM TIME", "TOTAL"},
		[][]string{{
			fmt.Sprintf("%d", outcome.Finished),
			fmt.Sprintf("%d", outcome.Skipped),
			fmt.Sprintf("%d", outcome.Failed),
			formatElapsed(outcome.ItemBuildTime),
			formatElapsed(outcome.TotalTime),
		}},
	))

	if len(outcome.Packs) > 0 {
		rows := make([][]string, 0, len(outcome.Packs))
		for _, pack := range outcome.Packs {
			rows = append(rows, []string{
				fmt.Sprintf("%d", pack.Number),
				utils.FormatBytes(pack.Size),
				fmt.Sprintf("%d", len(pack.Items)),
				pack.Path,
			})
		}
		r.printf("%s\n", renderTable([]string{"PACK", "SIZE", "ITEMS", "PATH"}, rows))
	}
}

func (r *renderer) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// renderTable renders rows with rounded borders on terminals and plain
// ASCII when output is piped.
func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	if stdoutIsTerminal() {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
