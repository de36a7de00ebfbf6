package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var showPeers bool

var showCmd = &cobra.Command{
	Use:   "show <analysis-id>",
	Short: "Print one analysis record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		record, err := st.GetAnalysis(ctx, args[0])
		if err != nil {
			return err
		}
		if record == nil {
			return eris.Errorf("analysis not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if !showPeers {
			return enc.Encode(record)
		}

		peers, err := st.PeersForBatch(ctx, record.PeerBatchID)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{
			"analysis": record,
			"peers":    peers,
		})
	},
}

func init() {
	showCmd.Flags().BoolVar(&showPeers, "peers", false, "include the peer batch used by the analysis")
	rootCmd.AddCommand(showCmd)
}
