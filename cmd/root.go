package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"steward/internal/api"
	"steward/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeInvalid indicates a request rejected before anything ran.
	ExitCodeInvalid = 2
	// ExitCodeUnresolved indicates a required link or a free port could not be found.
	ExitCodeUnresolved = 3
	// ExitCodeRemoteFailed indicates a command failed on a managed server.
	ExitCodeRemoteFailed = 4
)

var (
	// configPath specifies a custom configuration directory path.
	configPath string

	// debug enables verbose logging across the application.
	debug bool

	// quiet suppresses spinners, log output and decorations.
	quiet bool

	// outputFormat selects table, json or yaml output.
	outputFormat string
)

// rootCmd represents the base command for the steward application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Deploy and maintain application containers and bases on your servers",
	Long: `steward keeps containers and the bases (sites, databases) they host in line
with an application catalog. It deploys them on servers over SSH, wires the
links between them, allocates their ports and saves them on a schedule.

Run 'steward serve' to process periodic saves; the other commands act on the
record store directly.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "steward version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		if report := configReport(err); report != "" {
			fmt.Fprintln(rootCmd.ErrOrStderr(), report)
		}
		os.Exit(getExitCode(err))
	}
}

// configReport lists every configuration error when loading the
// configuration failed on more than one. Cobra only prints the first.
func configReport(err error) string {
	var collection config.ConfigurationErrorCollection
	if !errors.As(err, &collection) || len(collection.Errors) < 2 {
		return ""
	}
	return collection.GetDetailedReport()
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case api.IsValidation(err), api.IsNotFound(err):
		return ExitCodeInvalid
	case api.IsResolution(err):
		return ExitCodeUnresolved
	case api.IsExecution(err):
		return ExitCodeRemoteFailed
	default:
		return ExitCodeError
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default is $HOME/.config/steward)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
}
