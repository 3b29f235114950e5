// Command cifti2gifti splits the cortical surfaces of a CIFTI-2 dense file
// into left and right GIFTI files.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "cifti2gifti",
	Short: "Extract left and right cortical surfaces from CIFTI-2 files",
	Long: `cifti2gifti reads a grayordinate file (CIFTI-2 dscalar/dtseries, or a
.npy/.csv matrix with a YAML structure map) and writes the left and right
cortex as dense per-vertex surface files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("log-level")
		level, err := logrus.ParseLevel(name)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	},
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("structures", "", "YAML structure map; treats the input as a .npy or .csv matrix")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("cifti2gifti failed")
		os.Exit(1)
	}
}
