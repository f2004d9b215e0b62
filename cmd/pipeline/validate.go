package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"go-customer-intel/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check that a dataset can be activated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := pipeline.ValidateDataset(cmd.Context(), args[0], cfg.Data.MinRows)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(v); encErr != nil {
			return encErr
		}
		return err
	},
}
