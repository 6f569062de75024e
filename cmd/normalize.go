package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sells-group/spirits-cli/internal/brand"
)

var (
	normalizeStrict     bool
	normalizeConfidence string
	normalizeGroups     bool
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize-brand <brand>...",
	Short: "Canonicalize one or more raw brand names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("normalize"); err != nil {
			return err
		}
		n, err := initBrands()
		if err != nil {
			return err
		}
		bc, err := brandConfig(cfg.Brands)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("strict") {
			bc.StrictMatching = normalizeStrict
		}
		if normalizeConfidence != "" {
			if bc.MinimumConfidence, err = brand.ParseConfidence(normalizeConfidence); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if normalizeGroups {
			return enc.Encode(n.FindDuplicateBrands(args, bc))
		}

		data := pterm.TableData{{"Input", "Canonical", "Confidence", "Known", "Steps"}}
		for _, raw := range args {
			res := n.Normalize(raw, bc)
			known := "no"
			if res.IsKnownBrand {
				known = "yes"
			}
			data = append(data, []string{raw, res.Canonical, string(res.Confidence), known, strings.Join(res.Transformations, ",")})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeStrict, "strict", false, "disable fuzzy matching")
	normalizeCmd.Flags().StringVar(&normalizeConfidence, "min-confidence", "", "minimum confidence: low, medium or high")
	normalizeCmd.Flags().BoolVar(&normalizeGroups, "groups", false, "group the inputs by shared canonical brand")
	rootCmd.AddCommand(normalizeCmd)
}
