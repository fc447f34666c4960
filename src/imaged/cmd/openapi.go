package cmd

import (
	"fmt"

	"github.com/q-controller/imaged/src/imaged/cmd/utils"
	"github.com/spf13/cobra"
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Produces OpenAPI specifications for the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, specsErr := utils.GenerateOpenAPISpecs()
		if specsErr != nil {
			return fmt.Errorf("failed to generate OpenAPI specs: %w", specsErr)
		}

		fmt.Fprint(cmd.OutOrStdout(), specs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openapiCmd)
}
