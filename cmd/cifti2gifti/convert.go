package main

import (
	"path/filepath"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/KyungWonPark/Grayordinate/internal/cifti"
	"github.com/KyungWonPark/Grayordinate/internal/gifti"
	"github.com/KyungWonPark/Grayordinate/internal/io"
	"github.com/KyungWonPark/Grayordinate/internal/surface"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Write <output>.L.gii and <output>.R.gii",
	Long: `convert extracts CIFTI_STRUCTURE_CORTEX_LEFT and CIFTI_STRUCTURE_CORTEX_RIGHT.
The output base defaults to the input file name up to its first dot, in the
working directory. --format npy, csv or bin writes plain matrices instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		encoding, _ := cmd.Flags().GetString("encoding")
		if output == "" {
			output = outputBase(args[0])
		}

		c, err := loadInput(cmd, args[0])
		if err != nil {
			return err
		}
		if ok, names := surface.HasBilateralCortex(c.Axis); !ok {
			log.WithField("structures", names).Warn("input does not hold exactly one left and one right cortex")
		}

		paths, err := convert(c, output, format, gifti.Encoding(encoding))
		if err != nil {
			return err
		}
		for _, p := range paths {
			log.WithField("path", p).Info("wrote surface")
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "output path without the .L/.R suffix")
	convertCmd.Flags().String("format", "gifti", "output format: gifti, npy, csv or bin")
	convertCmd.Flags().String("encoding", string(gifti.GZipBase64Binary), "GIFTI encoding: GZipBase64Binary, Base64Binary or ASCII")

	rootCmd.AddCommand(convertCmd)
}

// outputBase returns the file name of path up to its first dot
func outputBase(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// convert decomposes c and writes both hemispheres, returning the paths written
func convert(c *cifti.Container, base, format string, enc gifti.Encoding) ([]string, error) {
	left, right, err := surface.Decompose(c)
	if err != nil {
		return nil, err
	}

	hemispheres := []struct {
		suffix    string
		structure string
		data      *mat64.Dense
	}{
		{"L", cifti.StructureCortexLeft, left},
		{"R", cifti.StructureCortexRight, right},
	}

	var paths []string
	for _, h := range hemispheres {
		var path string
		switch format {
		case "gifti", "":
			path = base + "." + h.suffix + ".gii"
			err = gifti.Write(path, h.data, gifti.Options{
				Encoding: enc,
				MetaData: map[string]string{"AnatomicalStructurePrimary": anatomicalName(h.structure)},
			})
		case "npy", "csv", "bin":
			path = base + "." + h.suffix + "." + format
			err = io.WriteMatrix(path, h.data)
		default:
			return paths, errors.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return paths, err
		}

		rows, cols := h.data.Dims()
		log.WithFields(logrus.Fields{"structure": h.structure, "vertices": rows, "samples": cols}).Debug("extracted surface")
		paths = append(paths, path)
	}
	return paths, nil
}

// anatomicalName maps CORTEX_LEFT to the GIFTI label CortexLeft
func anatomicalName(structure string) string {
	var b strings.Builder
	for _, part := range strings.Split(cifti.CanonicalStructure(structure), "_") {
		if part == "" {
			continue
		}
		b.WriteString(part[:1] + strings.ToLower(part[1:]))
	}
	return b.String()
}
