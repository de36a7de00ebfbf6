package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage registered accounts",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <handle>",
	Short: "Register an account for analysis",
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

		existing, err := st.GetAccountByHandle(ctx, args[0])
		if err != nil {
			return err
		}
		if existing != nil {
			return eris.Errorf("account %s already registered (%s)", existing.Handle, existing.ID)
		}

		account, err := st.CreateAccount(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("registered @%s (%s)\n", account.Handle, account.ID)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
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

		accounts, err := st.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			fmt.Printf("%s\t@%s\t%s\n", a.ID, a.Handle, a.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountListCmd)
	rootCmd.AddCommand(accountCmd)
}
