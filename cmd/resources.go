/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import "github.com/spf13/cobra"

func newResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Generate page HTML, manifests and the channel catalog",
		Long: `Render every top-level page through its generator (chosen by the page
template), write its offline manifest, and finish with the channel catalog.

Pages whose generated HTML differs from the committed copy are stamped with
the time of this run. A page that fails is reported and left out of the
catalog; the run only fails when the page index or channel metadata cannot be
read.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSynthesis(cmd, runMode{generate: true, catalog: true})
		},
	}
	addRunFlags(cmd)
	cmd.Flags().Bool("generate", true, "Run the per-page HTML generators")
	cmd.Flags().String("generators", "", "File mapping page templates to generators (yaml, toml or json)")
	return cmd
}
