/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import "github.com/spf13/cobra"

func newManifestsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifests",
		Short: "Write one offline manifest per page",
		Long: `Fetch the page index from the origin and write <page>.manifest.json for
every top-level page. Pages are taken as published; no HTML is generated and
no channel catalog is written.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSynthesis(cmd, runMode{})
		},
	}
	addRunFlags(cmd)
	return cmd
}
