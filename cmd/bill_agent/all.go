package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var allCommand = &cobra.Command{
	Use:   "all",
	Short: "Download Madhya Pradesh bills, then Maharashtra bills",
	Long: `Runs the mp command and then the mh command in one process. A fatal error on one
portal is reported but does not stop the other.`,
	RunE: runAll,
}

func init() {
	rootCmd.AddCommand(allCommand)
}

func runAll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := resolveConfig(opts, cmd.Flags().Changed)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, opts.verbose)
	if err != nil {
		return err
	}
	defer a.close()

	var errs []error
	if err := a.run(ctx, a.mpSite()); err != nil {
		a.log.WithError(err).Error("Madhya Pradesh run failed")
		errs = append(errs, err)
	}

	site, err := a.mhSite(0)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	if err := a.run(ctx, site); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
