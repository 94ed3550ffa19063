// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"fmt"
	"strings"

	"github.com/netascode/go-ucs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newResolveCmd(a *app) *cobra.Command {
	var hierarchical bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Query managed objects",
	}
	cmd.PersistentFlags().BoolVar(&hierarchical, "hierarchical", false, "include child objects")

	dn := &cobra.Command{
		Use:   "dn <dn>...",
		Short: "Resolve objects by distinguished name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			c, err := a.session(cmd.Context(), a.cfg.Host)
			if err != nil {
				return err
			}
			mos, unresolved, err := c.ConfigResolveDns(cmd.Context(), args, ucs.Hierarchical(hierarchical))
			if err != nil {
				return err
			}
			for _, u := range unresolved {
				a.log.Warn("dn not found", zap.String("dn", u))
			}
			fmt.Fprintln(cmd.OutOrStdout(), ucs.ManagedObjectsJSON(mos))
			return nil
		},
	}

	var filters []string
	class := &cobra.Command{
		Use:   "class <classId>",
		Short: "Resolve all objects of a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProps(filters)
			if err != nil {
				return err
			}
			defer a.close()
			c, err := a.session(cmd.Context(), a.cfg.Host)
			if err != nil {
				return err
			}
			mos, err := c.ConfigResolveClass(cmd.Context(), args[0], propFilter(c, args[0], props), ucs.Hierarchical(hierarchical))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ucs.ManagedObjectsJSON(mos))
			return nil
		},
	}
	class.Flags().StringArrayVar(&filters, "filter", nil, "property=value equality filter, repeatable")

	children := &cobra.Command{
		Use:   "children <parentDn> [classId]",
		Short: "Resolve the children of an object",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			classID := ""
			if len(args) == 2 {
				classID = args[1]
			}
			defer a.close()
			c, err := a.session(cmd.Context(), a.cfg.Host)
			if err != nil {
				return err
			}
			mos, err := c.ConfigResolveChildren(cmd.Context(), classID, args[0], nil, ucs.Hierarchical(hierarchical))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ucs.ManagedObjectsJSON(mos))
			return nil
		},
	}

	cmd.AddCommand(dn, class, children)
	return cmd
}

// parseProps turns "name=value" arguments into a property map
func parseProps(args []string) (map[string]string, error) {
	props := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q, expected property=value", arg)
		}
		props[k] = v
	}
	return props, nil
}

// propFilter returns nil when there is nothing to filter on
func propFilter(c *ucs.Client, classID string, props map[string]string) *ucs.Filter {
	if len(props) == 0 {
		return nil
	}
	return ucs.PropertyFilter(c.Registry(), classID, props, ucs.OpEq)
}
