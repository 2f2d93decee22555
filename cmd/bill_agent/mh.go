package main

import (
	"github.com/spf13/cobra"
)

var mhCommand = &cobra.Command{
	Use:   "mh",
	Short: "Download Maharashtra (MSEDCL) bills for every stored login",
	Long: `Logs in to the MSEDCL self-service portal with each credential in mh_website_credentials,
solving the login CAPTCHA, and saves the bill as {ConsumerName}_{ConsumerNumber}.pdf.

Use --record-id to process a single credential.`,
	RunE: runMH,
}

var mhRecordID int64

func init() {
	mhCommand.Flags().Int64Var(&mhRecordID, "record-id", 0, "Process only the credential with this id")

	rootCmd.AddCommand(mhCommand)
}

func runMH(cmd *cobra.Command, _ []string) error {
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

	site, err := a.mhSite(mhRecordID)
	if err != nil {
		return err
	}
	return a.run(ctx, site)
}
