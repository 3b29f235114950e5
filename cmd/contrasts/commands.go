package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the runs the batch would fit",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		m, err := p.Discover()
		if err != nil {
			return err
		}
		for _, r := range m {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.Subject, r.Session, r.RunLabel(), r.BoldPath)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fit every discovered run and write run level effect maps",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		m, err := p.Discover()
		if err != nil {
			return err
		}
		contrasts, err := p.RunLevel(cmd.Context(), m)
		log.WithField("contrasts", contrasts).Info("run level done")
		return err
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session [contrast...]",
	Short: "Pool run level maps per session (default: every contrast found)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		return p.SessionLevel(cmd.Context(), args)
	},
}

var averageCmd = &cobra.Command{
	Use:   "average [contrast...]",
	Short: "Pool session level maps across sessions (default: every contrast found)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		return p.StudyLevel(cmd.Context(), args)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run, session and study level in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		return p.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd, runCmd, sessionCmd, averageCmd, allCmd)
}
