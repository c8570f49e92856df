package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/paramforge/engine/internal/rebuild"
	"github.com/paramforge/engine/internal/types"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <document.json>",
	Short: "Run one rebuild against the configured kernel and print results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runRebuild(args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Bodies        map[types.ID]string            `json:"bodies"`
				FeatureStatus map[types.ID]types.FeatureStatus `json:"featureStatus"`
				Errors        []*types.BuildError             `json:"errors"`
			}{
				Bodies:        bodyNames(res.Bodies),
				FeatureStatus: res.FeatureStatus,
				Errors:        res.Errors,
			})
		}

		ids := make([]types.ID, 0, len(res.FeatureStatus))
		for id := range res.FeatureStatus {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			status := res.FeatureStatus[id]
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", statusStyle(status).Render(string(status)), id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d bodies, %d errors\n",
			boldStyle.Render("rebuild complete:"), len(res.Bodies), len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", warnStyle.Render(string(e.Code)), e.Message)
		}
		return nil
	},
}

func bodyNames(bodies map[types.ID]rebuild.BodyEntry) map[types.ID]string {
	out := make(map[types.ID]string, len(bodies))
	for id, entry := range bodies {
		out[id] = entry.Name
	}
	return out
}
