package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fathom/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "fathom",
	Short: "Fathom contract language backend",
	Long:  `Fathom compiles typed contract-language units down to printable VM assembly`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(dumpCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		configureColor(cmd)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configureColor resolves the --color flag, falling back to terminal
// autodetection.
func configureColor(cmd *cobra.Command) {
	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
