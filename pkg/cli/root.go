// Package cli provides the command-line interface for Kiln
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	projectFile string
	projectRoot string
	verbosity   string
	jobs        int
	noNotify    bool
	version     string
)

// ErrCancelled is returned when an operation was interrupted by the user
var ErrCancelled = errors.New("operation cancelled")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "The content pipeline that bakes your assets",
	Long: `🔥 Kiln - Incremental content builds for game and app assets

Kiln imports your source assets, runs them through processors and bakes the
results into compact content packs. Unchanged items are skipped, so rebuilds
only pay for what actually changed.`,
	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("🔥 Kiln v%s\n", version)
			return
		}
		// If no subcommand, show help
		cmd.Help()
	},
}

// Execute runs the CLI
func Execute(v string) error {
	version = v

	// Initialize the root command explicitly (avoiding init())
	initializeRootCommand()

	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags.
// This replaces the init() function to make initialization explicit and testable.
func initializeRootCommand() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&projectFile, "project", "", "project file (default: kiln.json)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root directory")
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", 0, "worker count (0 = one per core)")
	rootCmd.PersistentFlags().BoolVar(&noNotify, "no-notify", false, "disable desktop notifications")

	rootCmd.Flags().Bool("version", false, "Print version information and quit")

	// Add subcommands
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newRebuildCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	// Search for tool config in project root; viper infers the format from
	// the extension (kiln.config.json, kiln.config.yaml, ...)
	viper.AddConfigPath(projectRoot)
	viper.SetConfigName("kiln.config")

	// Read in environment variables
	viper.SetEnvPrefix("KILN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbosity == "debug" {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Helper functions

func printSuccess(message string) {
	fmt.Printf("🔥 %s %s\n", color.GreenString("[Kiln]"), message)
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "🔥 %s %s\n", color.RedString("[Kiln]"), message)
}

func printInfo(message string) {
	fmt.Printf("🔥 %s %s\n", color.CyanString("[Kiln]"), message)
}

func printWarning(message string) {
	fmt.Printf("🔥 %s %s\n", color.YellowString("[Kiln]"), message)
}

// getProjectPath resolves the project file: the --project flag, then a
// "project" key from kiln.config or KILN_PROJECT, then kiln.json or
// kiln.yaml in the project root.
func getProjectPath() string {
	if projectFile != "" {
		return projectFile
	}
	if configured := viper.GetString("project"); configured != "" {
		if filepath.IsAbs(configured) {
			return configured
		}
		return filepath.Join(projectRoot, configured)
	}

	jsonPath := filepath.Join(projectRoot, "kiln.json")
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath
	}
	yamlPath := filepath.Join(projectRoot, "kiln.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	return jsonPath
}
