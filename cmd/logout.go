package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the registered device, account selection and cached balance",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(_ *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.ClearAll(); err != nil {
		return fmt.Errorf("clearing stored data: %w", err)
	}
	fmt.Println("  Cleared stored credentials. Run `bunqday setup` to register again.")
	return nil
}
