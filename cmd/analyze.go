package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/levelx/growth-cli/internal/analysis"
)

var (
	analyzeRefreshProfile bool
	analyzeRefreshPeers   bool
	analyzeCreate         bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <handle>",
	Short: "Run a full growth analysis for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		handle := args[0]

		svc, st, err := initService(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		account, err := st.GetAccountByHandle(ctx, handle)
		if err != nil {
			return err
		}
		if account == nil {
			if !analyzeCreate {
				return eris.Errorf("account %s is not registered (use --create or 'account add')", handle)
			}
			account, err = st.CreateAccount(ctx, handle)
			if err != nil {
				return err
			}
			zap.L().Info("registered account", zap.String("handle", account.Handle))
		}

		result, err := svc.RunFullAnalysis(ctx, account.ID, analysis.RunOptions{
			ForceRefreshProfile: analyzeRefreshProfile,
			ForceRefreshPeers:   analyzeRefreshPeers,
		})
		if err != nil {
			return eris.Wrapf(err, "analyze @%s", account.Handle)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeRefreshProfile, "refresh-profile", false, "rebuild the profile even if a cached one is fresh")
	analyzeCmd.Flags().BoolVar(&analyzeRefreshPeers, "refresh-peers", false, "source a new peer batch even if the current one is fresh")
	analyzeCmd.Flags().BoolVar(&analyzeCreate, "create", false, "register the account if it does not exist")
	rootCmd.AddCommand(analyzeCmd)
}
