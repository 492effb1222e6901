package main

import (
	"github.com/spf13/cobra"

	"github.com/fashion-supplychain/progress-service/internal/domain"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the current stage of a production unit",
	Args:  cobra.NoArgs,
	RunE:  runResolve,
}

// resolveOutput is printed by the resolve command
type resolveOutput struct {
	UnitID  string `json:"unitId"`
	StyleNo string `json:"styleNo"`
	domain.Resolution
}

func runResolve(cmd *cobra.Command, _ []string) error {
	s, err := loadSnapshot()
	if err != nil {
		return err
	}
	res, err := domain.NewStageResolver(s.checker()).Resolve(cmd.Context(), s.catalog, s.unit, s.log)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), resolveOutput{
		UnitID:     s.unit.UnitID,
		StyleNo:    s.catalog.StyleNo(),
		Resolution: res,
	})
}
