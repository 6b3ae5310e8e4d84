package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/states"
)

var cleanStatesCmd = &cobra.Command{
	Use:   "clean-states",
	Short: "Canonicalize state names already stored in lassa_data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.CanonicalizeStates(ctx, states.Canonicalize)
		if err != nil {
			return eris.Wrap(err, "canonicalize states")
		}

		zap.L().Info("state names cleaned", zap.Int64("rows_updated", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanStatesCmd)
}
