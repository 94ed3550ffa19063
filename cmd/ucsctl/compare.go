// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/netascode/go-ucs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// compareFlags select what is compared and how candidate DNs are translated
type compareFlags struct {
	candidateHost   string
	fromOrg         string
	toOrg           string
	includeEqual    bool
	noVersionFilter bool
}

func (f *compareFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.candidateHost, "candidate-host", "", "manager holding the desired state")
	cmd.Flags().StringVar(&f.fromOrg, "from-org", "", "candidate org to translate from")
	cmd.Flags().StringVar(&f.toOrg, "to-org", "", "reference org to translate to")
	cmd.Flags().BoolVar(&f.noVersionFilter, "no-version-filter", false, "keep properties newer than the reference version")
	_ = cmd.MarkFlagRequired("candidate-host")
}

// compare resolves classIDs hierarchically on the configured host (the
// reference) and on the candidate host and returns the differences.
func (a *app) compare(ctx context.Context, f *compareFlags, classIDs []string) (*ucs.Client, []*ucs.MoDiff, error) {
	ref, err := a.session(ctx, a.cfg.Host)
	if err != nil {
		return nil, nil, err
	}
	cand, err := a.session(ctx, f.candidateHost)
	if err != nil {
		return nil, nil, err
	}

	refMos, err := ref.ConfigResolveClasses(ctx, classIDs, ucs.Hierarchical(true))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ref.Host, err)
	}
	candMos, err := cand.ConfigResolveClasses(ctx, classIDs, ucs.Hierarchical(true))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", cand.Host, err)
	}

	opts := []func(*ucs.CompareOptions){ucs.CompareVersion(ref.Version())}
	if f.includeEqual {
		opts = append(opts, ucs.IncludeEqual())
	}
	if f.noVersionFilter {
		opts = append(opts, ucs.NoVersionFilter())
	}
	if f.fromOrg != "" || f.toOrg != "" {
		opts = append(opts, ucs.Translate(ucs.DnTranslation{FromOrg: f.fromOrg, ToOrg: f.toOrg}))
	}

	diffs, err := ucs.CompareManagedObject(ref.Registry(), refMos, candMos, opts...)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("compared",
		zap.String("reference", ref.Host),
		zap.String("candidate", cand.Host),
		zap.Int("reference_objects", len(refMos)),
		zap.Int("candidate_objects", len(candMos)),
		zap.Int("diffs", len(diffs)))
	return ref, diffs, nil
}

func printDiffs(w io.Writer, diffs []*ucs.MoDiff) {
	for _, d := range diffs {
		fmt.Fprintln(w, d.JSON())
	}
}

func newDiffCmd(a *app) *cobra.Command {
	var f compareFlags
	cmd := &cobra.Command{
		Use:   "diff <classId>...",
		Short: "Compare classes between two managers",
		Long: "Compare the objects of the given classes on --host (reference) with\n" +
			"--candidate-host. Prints one JSON document per difference.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			_, diffs, err := a.compare(cmd.Context(), &f, args)
			if err != nil {
				return err
			}
			printDiffs(cmd.OutOrStdout(), diffs)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.includeEqual, "include-equal", false, "also print identical objects")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	var (
		f                compareFlags
		deleteNotPresent bool
		dryRun           bool
		policyFile       string
	)
	cmd := &cobra.Command{
		Use:   "sync <classId>...",
		Short: "Make --host match --candidate-host",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var syncOpts []func(*ucs.SyncOptions)
			if policyFile != "" {
				data, err := os.ReadFile(policyFile)
				if err != nil {
					return err
				}
				table, err := ucs.LoadPolicyJSON(data)
				if err != nil {
					return fmt.Errorf("%s: %w", policyFile, err)
				}
				syncOpts = append(syncOpts, ucs.WithPolicyTable(table))
			}
			if deleteNotPresent {
				syncOpts = append(syncOpts, ucs.DeleteNotPresent())
			}
			if f.noVersionFilter {
				syncOpts = append(syncOpts, ucs.SyncNoVersionFilter())
			}

			defer a.close()
			ref, diffs, err := a.compare(cmd.Context(), &f, args)
			if err != nil {
				return err
			}
			printDiffs(cmd.OutOrStdout(), diffs)
			if dryRun || len(diffs) == 0 {
				return nil
			}

			mos, err := ref.SyncManagedObject(cmd.Context(), diffs, syncOpts...)
			if err != nil {
				return err
			}
			a.log.Info("synchronised", zap.String("host", ref.Host), zap.Int("objects", len(mos)))
			fmt.Fprintf(cmd.ErrOrStderr(), "%d objects changed on %s\n", len(mos), ref.Host)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&deleteNotPresent, "delete-not-present", false, "delete objects missing from the candidate")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the differences without changing anything")
	cmd.Flags().StringVar(&policyFile, "policy", "", "JSON sync policy table")
	return cmd
}
