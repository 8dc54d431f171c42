package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/charlabot/charla/pkg/config"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

// configOverride is set by the root --config flag.
var configOverride string

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("charla %s\n", formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	fmt.Printf("  Go: %s\n", runtime.Version())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "charla",
		Short:         "WhatsApp bot with per-user conversational context",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configOverride, "config", "", "Path to config file")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newLinkCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			printVersion()
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths := runtimePaths()
			if _, err := os.Stat(paths.ConfigPath); err == nil {
				fmt.Printf("Config already exists: %s\n", paths.ConfigPath)
				return nil
			}
			if err := config.SaveConfig(paths.ConfigPath, config.DefaultConfig()); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Printf("Config written to %s\n", paths.ConfigPath)
			fmt.Println("Edit it, then run 'charla link' to pair a WhatsApp device.")
			return nil
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtimePaths resolves config and database locations; the --config
// flag wins over CHARLA_CONFIG / CHARLA_HOME.
func runtimePaths() config.RuntimePaths {
	if configOverride != "" {
		return config.RuntimePathsFor(configOverride)
	}
	return config.ResolveRuntimePaths()
}

func loadConfig() (*config.Config, config.RuntimePaths, error) {
	paths := runtimePaths()
	cfg, err := config.LoadConfig(paths.ConfigPath)
	if err != nil {
		return nil, paths, err
	}
	return cfg, paths, nil
}
