package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/KyungWonPark/Grayordinate/internal/surface"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Report whether a file holds both cortical hemispheres",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadInput(cmd, args[0])
		if err != nil {
			return err
		}
		ok, names := surface.HasBilateralCortex(c.Axis)
		fmt.Fprintf(cmd.OutOrStdout(), "bilateral: %t\nstructures: %s\n", ok, strings.Join(names, ", "))
		if !ok {
			return errors.Errorf("%s does not hold exactly one left and one right cortex", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
