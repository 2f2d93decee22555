package main

import (
	"github.com/spf13/cobra"
)

var mpCommand = &cobra.Command{
	Use:   "mp",
	Short: "Download Madhya Pradesh (MPWZ) bills for every stored IVRS number",
	Long: `Looks up each IVRS number in mp_website_credentials on the MPWZ portal and saves the
full bill as IVRS-{number}.pdf.`,
	RunE: runMP,
}

func init() {
	rootCmd.AddCommand(mpCommand)
}

func runMP(cmd *cobra.Command, _ []string) error {
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

	return a.run(ctx, a.mpSite())
}
