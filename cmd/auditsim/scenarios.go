package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/auditsim/pkg/behavior"
	"github.com/rmax-ai/auditsim/pkg/scenario"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the built-in scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, d := range scenario.Builtin().Definitions() {
			var roles []string
			for _, r := range behavior.AllRoles() {
				if d.AllowsRole(r) {
					roles = append(roles, string(r))
				}
			}
			fmt.Fprintln(out, headerStyle.Render(d.Name))
			fmt.Fprintln(out, subtleStyle.Render(d.Description))
			fmt.Fprintln(out, row("roles", strings.Join(roles, ", ")))
			for i, st := range d.Stages {
				fmt.Fprintf(out, "  %d. %-14s %-7s %-14s when %s\n", i+1, st.Name, st.Operation, st.Target, st.When)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
}
