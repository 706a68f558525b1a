package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragrelay/ragrelay/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("ragrelay %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		// Version output should not fail on a broken config file.
		fmt.Printf("\nConfiguration: unavailable (%v)\n", err)
		return nil
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Address: %s\n", cfg.Addr)
	fmt.Printf("  Backend: %s\n", cfg.BackendURL)
	fmt.Printf("  Generate model: %s\n", cfg.GenerateModel)
	fmt.Printf("  Chat model: %s\n", cfg.EffectiveChatModel())
	fmt.Printf("  Embed model: %s\n", cfg.EmbedModel)
	fmt.Printf("  Persist dir: %s\n", cfg.PersistDir)
	fmt.Printf("  Source roots: %s\n", cfg.SourceRoots)

	return nil
}
