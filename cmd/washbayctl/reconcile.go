package main

import (
	"encoding/json"
	"errors"

	"github.com/smallbiznis/washbay/internal/reconcile"
	"github.com/spf13/cobra"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "reconcile [job...]",
		Short:     "Run reconciliation jobs once (all enabled jobs when none is named)",
		ValidArgs: reconcile.Jobs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r *reconcile.Reconciler
			return opts.withApp(cmd.Context(), func() error {
				var (
					results []reconcile.JobResult
					err     error
				)
				if len(args) == 0 {
					results, err = r.RunOnce(cmd.Context())
				} else {
					for _, name := range args {
						result, jobErr := r.Run(cmd.Context(), name)
						results = append(results, result)
						err = errors.Join(err, jobErr)
					}
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(results); encErr != nil {
					return encErr
				}
				return err
			}, &r)
		},
	}
}
