package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fathom/internal/target"
)

var targetCmd = &cobra.Command{
	Use:   "target [description.toml]",
	Short: "Print the resolved VM target description",
	Long:  `Without arguments prints the built-in default target; with a TOML file, validates and prints the described target`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := target.Default()
		if len(args) == 1 {
			var err error
			if t, err = target.Load(args[0]); err != nil {
				return err
			}
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "name:               %s\n", t.Name)
		fmt.Fprintf(out, "word size:          %d bytes\n", t.WordSize)
		fmt.Fprintf(out, "registers:          %d\n", t.Registers)
		fmt.Fprintf(out, "immediate width:    %d bits (max %d)\n", t.ImmBits, t.MaxImmediate())
		if t.DataSectionLimit > 0 {
			fmt.Fprintf(out, "data section limit: %d bytes\n", t.DataSectionLimit)
		} else {
			fmt.Fprintln(out, "data section limit: unlimited")
		}
		return nil
	},
}
