package main

import (
	"fmt"

	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <ours|theirs|both> <path...>",
		Short: "Resolve unresolved merge conflicts and, when none remain, complete the merge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			choice := args[0]
			if choice != "ours" && choice != "theirs" && choice != "both" {
				return fmt.Errorf("resolve: first argument must be ours, theirs, or both")
			}
			paths := args[1:]
			if len(paths) == 0 {
				return fmt.Errorf("resolve: at least one conflicted path is required")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			resolutions := make(map[string]string, len(paths))
			for _, p := range paths {
				resolutions[p] = choice
			}

			commitHash, err := r.Resolve(resolutions)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if commitHash == "" {
				fmt.Fprintln(out, "resolved; conflicts remain, merge still in progress")
				return nil
			}
			short := string(commitHash)
			if len(short) > 8 {
				short = short[:8]
			}
			fmt.Fprintf(out, "merge completed [%s]\n", short)
			return nil
		},
	}
	return cmd
}
