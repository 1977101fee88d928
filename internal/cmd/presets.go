package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/admitd/admitd/internal/handlers"
	"github.com/admitd/admitd/internal/ratelimit"
)

var presetsOutput string

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in rate limit presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writePresets(cmd.OutOrStdout(), presetsOutput)
	},
}

func writePresets(w io.Writer, format string) error {
	all := ratelimit.Presets()

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		out := make([]handlers.PresetResponse, 0, len(all))
		for _, cfg := range all {
			out = append(out, handlers.NewPresetResponse(cfg))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	case "table", "":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Preset", "Window", "Max Requests", "Block", "Skip Success", "Skip Failure"})
		for _, cfg := range all {
			t.AppendRow(table.Row{
				cfg.Name,
				cfg.Window,
				cfg.MaxRequests,
				blockLabel(cfg),
				cfg.SkipSuccessfulRequests,
				cfg.SkipFailedRequests,
			})
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
		})
		t.Render()
		return nil

	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func blockLabel(cfg ratelimit.Config) string {
	if cfg.BlockDuration == 0 {
		return "-"
	}
	return cfg.BlockDuration.String()
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.Flags().StringVarP(&presetsOutput, "output", "o", "table", "output format: table or json")
}
