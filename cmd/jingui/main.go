package main

import (
	"os"

	"github.com/aspect-build/jingui/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "jingui",
		Short:   "Jingui (金匮) - attested TLS client for TDX-hosted peers",
		Version: version.Version,
	}
	rootCmd.SetVersionTemplate(version.String("jingui") + "\n")

	rootCmd.AddCommand(newAtlsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
