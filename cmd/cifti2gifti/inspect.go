package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KyungWonPark/Grayordinate/internal/gifti"
	"github.com/KyungWonPark/Grayordinate/internal/surface"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the structure map of a grayordinate file or the shape of a GIFTI file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if strings.HasSuffix(args[0], ".gii") {
			img, err := gifti.Read(args[0])
			if err != nil {
				return err
			}
			rows, cols := img.Data.Dims()
			fmt.Fprintf(out, "vertices: %d\nsamples: %d\n", rows, cols)
			for k, v := range img.MetaData {
				fmt.Fprintf(out, "%s: %s\n", k, v)
			}
			return nil
		}

		c, err := loadInput(cmd, args[0])
		if err != nil {
			return err
		}
		rows, cols := c.Data.Dims()
		fmt.Fprintf(out, "data: %d by %d, %s\n", rows, cols, surface.LayoutOf(c))

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STRUCTURE\tTYPE\tOFFSET\tCOUNT")
		for _, m := range c.Axis.Models {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", m.Name, m.Type, m.Offset, m.Count)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
