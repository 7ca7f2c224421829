package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/onronder/ContentLabTech-sub011/internal/processor"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Print the scoring weights and estimate formula of every processor",
	RunE: func(cmd *cobra.Command, args []string) error {
		contracts := processor.NewDefaultRegistry(processor.Dependencies{}).Contracts()
		for _, c := range contracts {
			if err := c.Weights.Check(); err != nil {
				return fmt.Errorf("%s: %w", c.Type, err)
			}
		}

		out, err := yaml.Marshal(contracts)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
