package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fathom/internal/driver"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <artifact.mp>",
	Short: "Decode a cached artifact and print its listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		art, err := driver.DecodeArtifactFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "; %s artifact\n", art.Kind)
		fmt.Fprint(out, art.Text)
		return nil
	},
}
