package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mscrnt/mchconfig/pkg/imc"
)

// generationInfo is one row of `mchconfig generations --json`
type generationInfo struct {
	Generation     imc.Generation `json:"generation"`
	Name           string         `json:"name"`
	Models         []uint32       `json:"models"`
	KnownDeviceIDs []uint16       `json:"known_device_ids"`
	Channels       int            `json:"channels"`
}

func listGenerations() []generationInfo {
	models := make(map[imc.Generation][]uint32)
	for _, m := range imc.SupportedModels() {
		models[m.Generation] = append(models[m.Generation], m.Model)
	}

	var out []generationInfo
	for _, m := range imc.DefaultRegistry().List() {
		out = append(out, generationInfo{
			Generation:     m.Generation,
			Name:           m.Name,
			Models:         models[m.Generation],
			KnownDeviceIDs: m.KnownDeviceIDs,
			Channels:       len(m.Channels),
		})
	}
	return out
}

func generationsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "generations",
		Short: "List supported processor generations",
		Long:  "List the processor generations with a register layout, the family 6 models that resolve to them and their known host bridge device IDs.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gens := listGenerations()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(gens)
			}

			fmt.Fprintf(out, "%-12s %-38s %-16s %s\n", "Generation", "Name", "Models", "Device IDs")
			fmt.Fprintln(out, strings.Repeat("-", 100))
			for _, g := range gens {
				var models, dids []string
				for _, m := range g.Models {
					models = append(models, fmt.Sprintf("%#02x", m))
				}
				for _, d := range g.KnownDeviceIDs {
					dids = append(dids, fmt.Sprintf("%04x", d))
				}
				fmt.Fprintf(out, "%-12s %-38s %-16s %s\n", g.Generation, g.Name,
					strings.Join(models, ","), strings.Join(dids, " "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
