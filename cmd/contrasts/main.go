// Command contrasts runs the task contrast batch: run level model fits, then
// session and study level fixed effects maps.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/KyungWonPark/Grayordinate/internal/config"
	"github.com/KyungWonPark/Grayordinate/internal/glm"
	"github.com/KyungWonPark/Grayordinate/internal/pipeline"
	"github.com/KyungWonPark/Grayordinate/internal/volume"
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "contrasts",
	Short: "Task contrast maps at run, session and study level",
	Long: `contrasts discovers the BOLD runs of one task, fits a first-level model per
run through an external program, and pools the resulting effect maps with a
fixed effects model per session and across sessions.

Settings come from contrasts.yaml (or --config) and GRAYORDINATE_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./contrasts.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("input-dir", ".", "study root holding sub-*/ses-*/func")
	flags.String("output-dir", ".", "root of run_effect_size, session_contrast_maps and average_contrast_maps")
	flags.String("task", "motor", "task label")
	flags.StringSlice("subjects", nil, "subject labels to include (default: all)")
	flags.StringSlice("sessions", nil, "session labels to include (default: all)")
	flags.Bool("precision-weighted", false, "weigh maps by inverse variance when pooling")

	config.SetDefaults(viper.GetViper())
	for key, flag := range map[string]string{
		"log_level":                        "log-level",
		"input_dir":                        "input-dir",
		"output_dir":                       "output-dir",
		"task":                             "task",
		"subjects":                         "subjects",
		"sessions":                         "sessions",
		"fixed_effects.precision_weighted": "precision-weighted",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("contrasts")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newPipeline loads the configuration and wires the NIfTI store and fitter
func newPipeline() (*pipeline.Pipeline, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	fitter := glm.NewCommandFitter(cfg.GLM.Command, cfg.GLM.Args, log)
	return pipeline.New(cfg, volume.NiftiStore{}, fitter, log), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("contrasts failed")
		os.Exit(1)
	}
}
