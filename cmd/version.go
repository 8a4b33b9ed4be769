/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/fulmenhq/offlinegen/internal/gitctx"
	"github.com/fulmenhq/offlinegen/pkg/buildinfo"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show offlinegen version",
		Long: `Show the offlinegen binary version. With --extended, also report the
origin host derived from the git checkout in the working directory.`,
		RunE: runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show detailed build and git information")
	cmd.Flags().Bool("json", false, "Output version information in JSON format")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	info := map[string]interface{}{
		"version":   buildinfo.BinaryVersion,
		"goVersion": runtime.Version(),
		"platform":  runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
	if mv := buildinfo.ModuleVersion(); mv != "" {
		info["moduleVersion"] = mv
	}
	if extended {
		if host, err := gitctx.DetectHost("."); err == nil {
			info["host"] = host
		} else {
			info["host"] = ""
			info["hostError"] = err.Error()
		}
	}

	if jsonOutput {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %v", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "offlinegen %s\n", buildinfo.BinaryVersion)
	if mv, ok := info["moduleVersion"]; ok {
		fmt.Fprintf(out, "Module version: %s\n", mv)
	}
	fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
	fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if extended {
		if host := info["host"].(string); host != "" {
			fmt.Fprintf(out, "Origin host: %s\n", host)
		} else {
			fmt.Fprintf(out, "Origin host: unknown (%s)\n", info["hostError"])
		}
	}
	return nil
}
