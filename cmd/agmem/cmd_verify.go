package main

import (
	"fmt"

	"github.com/vivek-tiwari-vt/agmem/pkg/fsck"
	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var chain bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify loose and packed object integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			report, err := r.Store.Verify()
			if err != nil {
				return err
			}

			fmt.Fprintf(
				cmd.OutOrStdout(),
				"ok: verified %d loose object(s), %d pack file(s), %d packed object(s)\n",
				report.LooseObjects,
				report.PackFiles,
				report.PackObjects,
			)

			if !chain {
				return nil
			}
			return runVerifyChain(cmd, r)
		},
	}

	cmd.Flags().BoolVar(&chain, "chain", false, "also verify refs and each branch tip's merkle root and signature")
	return cmd
}

func runVerifyChain(cmd *cobra.Command, r *repo.Repo) error {
	report, err := fsck.Run(r)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	for _, issue := range report.Issues {
		fmt.Fprintf(cmd.OutOrStdout(), "issue [%s]: %s\n", issue.Category, issue.Detail)
	}
	if !report.Healthy() {
		return fmt.Errorf("verify: found %d issue(s)", len(report.Issues))
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok: refs and commit signatures consistent")
	return nil
}
