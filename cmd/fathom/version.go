package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fathom/internal/version"
)

var (
	versionFormat string
	versionFull   bool
)

type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().BoolVar(&versionFull, "full", false, "include git commit and build date")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show fathom build fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch versionFormat {
		case "pretty":
			renderVersionPretty(cmd.OutOrStdout())
			return nil
		case "json":
			return renderVersionJSON(cmd.OutOrStdout())
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
		}
	},
}

func renderVersionPretty(w io.Writer) {
	fmt.Fprintf(w, "fathom %s\n", version.Version)
	if !versionFull {
		return
	}
	if version.GitCommit != "" {
		fmt.Fprintf(w, "commit: %s\n", version.GitCommit)
	}
	if version.BuildDate != "" {
		fmt.Fprintf(w, "built:  %s\n", version.BuildDate)
	}
}

func renderVersionJSON(w io.Writer) error {
	p := versionPayload{Tool: "fathom", Version: version.Version}
	if versionFull {
		p.GitCommit = version.GitCommit
		p.BuildDate = version.BuildDate
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}
