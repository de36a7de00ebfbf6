package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/levelx/growth-cli/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <handle>",
	Short: "Export the latest analysis to an XLSX workbook",
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

		account, err := st.GetAccountByHandle(ctx, args[0])
		if err != nil {
			return err
		}
		if account == nil {
			return eris.Errorf("account %s is not registered", args[0])
		}

		record, err := st.LatestAnalysis(ctx, account.ID)
		if err != nil {
			return err
		}
		if record == nil {
			return eris.Errorf("no analyses for @%s", account.Handle)
		}

		peers, err := st.PeersForBatch(ctx, record.PeerBatchID)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("%s-analysis.xlsx", account.Handle)
		}
		if err := writeWorkbook(out, account.Handle, record, peers); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", out)
		return nil
	},
}

func writeWorkbook(path, handle string, record *model.AnalysisRecord, peers []model.PeerMatch) error {
	wb := xlsx.NewFile()

	insightSheet, err := wb.AddSheet("Insights")
	if err != nil {
		return eris.Wrap(err, "xlsx: add insights sheet")
	}
	addRow(insightSheet, "Analysis", record.ID)
	addRow(insightSheet, "Account", "@"+handle)
	addRow(insightSheet, "Created", record.CreatedAt.Format("2006-01-02 15:04"))
	addRow(insightSheet, "Growth score", fmt.Sprintf("%.1f", record.GrowthScore))
	addRow(insightSheet, "Explanation", record.Insights.Explanation)
	addRow(insightSheet)
	addRow(insightSheet, "Title", "Category", "Priority", "Current", "Peers", "Action", "Expected result")
	for _, insight := range record.Insights.Insights {
		addRow(insightSheet,
			insight.Title, insight.Category, insight.Priority,
			insight.CurrentState, insight.PeerState,
			insight.Action, insight.ExpectedResult,
		)
	}
	if len(record.Insights.QuickWins) > 0 {
		addRow(insightSheet)
		addRow(insightSheet, "Quick wins", strings.Join(record.Insights.QuickWins, "; "))
	}

	peerSheet, err := wb.AddSheet("Peers")
	if err != nil {
		return eris.Wrap(err, "xlsx: add peers sheet")
	}
	addRow(peerSheet, "Handle", "Followers", "Score", "Reason", "Growth edge", "Niche")
	for _, peer := range peers {
		addRow(peerSheet,
			"@"+peer.Handle,
			fmt.Sprintf("%d", peer.Followers),
			fmt.Sprintf("%.0f", peer.MatchScore),
			peer.MatchReason,
			peer.GrowthEdge,
			peer.Analysis.PrimaryNiche,
		)
	}

	return eris.Wrapf(wb.Save(path), "xlsx: save %s", path)
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <handle>-analysis.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
