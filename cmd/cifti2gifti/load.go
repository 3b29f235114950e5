package main

import (
	"github.com/spf13/cobra"

	"github.com/KyungWonPark/Grayordinate/internal/cifti"
	"github.com/KyungWonPark/Grayordinate/internal/io"
)

// loadInput reads a CIFTI file, or a plain matrix when --structures is set
func loadInput(cmd *cobra.Command, path string) (*cifti.Container, error) {
	manifest, _ := cmd.Flags().GetString("structures")
	if manifest != "" {
		return io.LoadGrayordinates(path, manifest)
	}
	return cifti.Load(path)
}
