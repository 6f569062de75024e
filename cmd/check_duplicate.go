package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spirits-cli/internal/model"
)

var (
	checkName  string
	checkBrand string
	checkType  string
	checkABV   float64
)

var checkDuplicateCmd = &cobra.Command{
	Use:   "check-duplicate",
	Short: "Check whether a spirit already exists in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkName == "" {
			return eris.New("--name is required")
		}
		env, err := initEnv(cmd.Context(), "store")
		if err != nil {
			return err
		}
		defer env.Close()

		candidate := model.Spirit{Name: checkName, Brand: checkBrand, Type: checkType}
		if cmd.Flags().Changed("abv") {
			candidate.ABV = model.Float(checkABV)
		}
		decision, err := env.Checker.Check(cmd.Context(), candidate)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(decision)
	},
}

func init() {
	checkDuplicateCmd.Flags().StringVar(&checkName, "name", "", "spirit name")
	checkDuplicateCmd.Flags().StringVar(&checkBrand, "brand", "", "spirit brand")
	checkDuplicateCmd.Flags().StringVar(&checkType, "type", "", "spirit type (e.g. Bourbon)")
	checkDuplicateCmd.Flags().Float64Var(&checkABV, "abv", 0, "alcohol by volume")
	rootCmd.AddCommand(checkDuplicateCmd)
}
