package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <handle>",
	Short: "List past analyses for an account",
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

		records, err := st.ListAnalyses(ctx, account.ID, historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("no analyses for @%s\n", account.Handle)
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s\t%s\tscore=%.1f\tinsights=%d\n",
				rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"),
				rec.GrowthScore, len(rec.Insights.Insights))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum analyses to list")
	rootCmd.AddCommand(historyCmd)
}
