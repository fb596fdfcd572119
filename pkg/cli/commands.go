package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiln/kiln/internal/engine"
	"github.com/kiln/kiln/pkg/interfaces"
	"github.com/kiln/kiln/pkg/logger"
	"github.com/kiln/kiln/pkg/notifier"
	"github.com/kiln/kiln/pkg/project"
	"github.com/kiln/kiln/pkg/types"
)

func newBuildCmd() *cobra.Command {
	var release bool
	var stats bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the content project incrementally",
		Long:  `Build every item whose source or pipeline settings changed since the last build. Unchanged items are skipped via the build cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(types.BuildOptions{Release: release, CollectStats: stats}, false)
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "aggregate outputs into content packs")
	cmd.Flags().BoolVar(&stats, "stats", false, "report per-item size and timing statistics")

	return cmd
}

func newRebuildCmd() *cobra.Command {
	var release bool
	var stats bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Build every item, ignoring the cache",
		Long:  `Run the full pipeline for every item regardless of cache freshness.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(types.BuildOptions{Rebuild: true, Release: release, CollectStats: stats}, false)
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "aggregate outputs into content packs")
	cmd.Flags().BoolVar(&stats, "stats", false, "report per-item size and timing statistics")

	return cmd
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove build outputs and cache entries",
		Long:  `Remove every intermediate output, content pack and build cache entry of the project.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(types.BuildOptions{}, true)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all content items",
		Long:  `List every item defined in the project file with its pipeline assignment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project file",
		Long:  `Check that the project file parses and every item is properly configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Kiln",
		Long:  `Print the version number of Kiln`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("🔥 Kiln v%s\n", version)
		},
	}
}

// Implementation functions

// runOperation loads the project, runs a build or clean and renders events
// while the operation is in flight.
func runOperation(opts types.BuildOptions, clean bool) error {
	proj, err := project.NewManager().Load(getProjectPath())
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	log := logger.CreateLogger("", verbosity)
	k, err := engine.New(proj, engine.Options{
		Parallelism: jobs,
		Logger:      log,
		Deps: interfaces.Dependencies{
			Notifier: notifier.New(notifier.Config{Enabled: !noNotify && !clean}, log),
		},
	})
	if err != nil {
		return err
	}
	defer k.Close()

	var handle *engine.Handle
	if clean {
		handle, err = k.Clean()
	} else {
		handle, err = k.Build(opts)
	}
	if err != nil {
		return err
	}

	// Forward the first interrupt as a cancellation request; a second one
	// exits immediately.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		printWarning("Interrupt received, finishing in-flight items...")
		k.Cancel()
		<-sigChan
		os.Exit(130)
	}()

	r := newRenderer(os.Stdout, verbosity == "debug")
	handle.Start()

	// Drain the event queue on our own cadence while the operation runs
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-handle.Done():
			done = true
		case <-ticker.C:
		}
		k.Poll(r)
	}

	outcome := handle.Outcome()
	r.renderSummary(outcome, clean)

	switch outcome.Status {
	case types.BuildStatusCancelled:
		return ErrCancelled
	case types.BuildStatusFailed:
		if clean {
			return fmt.Errorf("clean failed")
		}
		return fmt.Errorf("build failed: %d item(s) did not build", outcome.Failed)
	}
	return nil
}

func runList() error {
	proj, err := project.NewManager().Load(getProjectPath())
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	printInfo(fmt.Sprintf("Project: %s (%d items)", getProjectPath(), len(proj.Items)))
	fmt.Println()

	rows := make([][]string, 0, len(proj.Items))
	for _, item := range proj.Items {
		args := ""
		if len(item.ImporterArgs) > 0 || len(item.ProcessorArgs) > 0 {
			args = fmt.Sprintf("%d", len(item.ImporterArgs)+len(item.ProcessorArgs))
		}
		rows = append(rows, []string{item.Path, item.Importer, item.Processor, args})
	}

	fmt.Println(renderTable(
		[]string{"PATH", "IMPORTER", "PROCESSOR", "ARGS"},
		rows,
	))
	return nil
}

func runValidate() error {
	path := getProjectPath()

	m := project.NewManager()
	data, err := os.ReadFile(path)
	if err != nil {
		printError(fmt.Sprintf("Project file is unreadable: %v", err))
		return err
	}

	proj, err := m.Parse(data)
	if err != nil {
		printError(fmt.Sprintf("Project file is invalid: %v", err))
		return err
	}

	if err := m.Validate(proj); err != nil {
		printError(fmt.Sprintf("Project is invalid: %v", err))
		return err
	}

	printSuccess(fmt.Sprintf("Project is valid (%d items)", len(proj.Items)))
	return nil
}
