package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config without running it",
	Long: `Loads the config, the transition model and the scenario selection, builds
the population and reports the first problem found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if _, err := cfg.Calendar(); err != nil {
			return err
		}
		model, err := cfg.Model()
		if err != nil {
			return err
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}
		pop, err := cfg.Population()
		if err != nil {
			return err
		}
		for _, a := range pop {
			if !model.Has(a.Role) {
				return fmt.Errorf("transition model has no profile for role %s", a.Role)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, okStyle.Render("Config is valid"))
		fmt.Fprintln(out, row("run", cfg.Summary()))
		fmt.Fprintln(out, row("scenarios", fmt.Sprintf("%d enabled", reg.Len())))
		fmt.Fprintln(out, row("sink", cfg.Sink.Kind))
		if len(cfg.Unused) > 0 {
			fmt.Fprintln(out, row("ignored keys", fmt.Sprint(cfg.Unused)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
