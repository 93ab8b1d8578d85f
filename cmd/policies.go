package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/agri-esg/internal/report"
)

var policiesJSON bool

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the available scoring policies",
	Long:  "Lists the built-in scoring policies plus any loaded from scoring.policy_file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := initRegistry(cfg)
		if err != nil {
			return err
		}
		if policiesJSON {
			return report.WriteJSON(os.Stdout, reg.List())
		}
		printPolicies(os.Stdout, reg.List())
		return nil
	},
}

func init() {
	policiesCmd.Flags().BoolVar(&policiesJSON, "json", false, "print full policy definitions as JSON")
	rootCmd.AddCommand(policiesCmd)
}
