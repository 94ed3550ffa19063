// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/netascode/go-ucs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		classID  string
		dn       string
		prop     string
		success  []string
		failure  []string
		poll     time.Duration
		maxWait  time.Duration
		queueLen int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print change events until interrupted or a final value is seen",
		Long: "Without --poll, events are read from the event stream and may be limited\n" +
			"to one --class or one --dn. With --poll, --dn and --prop are required and\n" +
			"the object is resolved at that interval.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			defer a.close()
			c, err := a.session(ctx, a.cfg.Host)
			if err != nil {
				return err
			}

			opts := ucs.WatchOptions{
				ClassID:       classID,
				Prop:          prop,
				SuccessValues: success,
				FailureValues: failure,
				PollInterval:  poll,
				Timeout:       maxWait,
				QueueSize:     queueLen,
			}
			if dn != "" {
				mo, err := c.ConfigResolveDn(ctx, dn)
				if err != nil {
					return err
				}
				opts.ManagedObject = mo
			}

			wb, err := c.AddEventHandler(ctx, opts)
			if err != nil {
				return err
			}
			stop := a.mgr.HandleSignals(ctx)
			defer stop()

			a.log.Info("watching", zap.String("id", wb.ID.String()), zap.Bool("poll", wb.IsPoll()))
			return printEvents(cmd.OutOrStdout(), wb)
		},
	}
	cmd.Flags().StringVar(&classID, "class", "", "only events of this class")
	cmd.Flags().StringVar(&dn, "dn", "", "only events of this object")
	cmd.Flags().StringVar(&prop, "prop", "", "property compared against --success and --failure")
	cmd.Flags().StringSliceVar(&success, "success", nil, "values that end the watch successfully")
	cmd.Flags().StringSliceVar(&failure, "failure", nil, "values that end the watch with an error")
	cmd.Flags().DurationVar(&poll, "poll", 0, "poll interval instead of the event stream")
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "give up after this long")
	cmd.Flags().IntVar(&queueLen, "queue-size", 0, "event queue size")
	cmd.MarkFlagsMutuallyExclusive("class", "dn")
	return cmd
}

// printEvents writes queued events as JSON until the watcher is
// deregistered and its queue is empty.
func printEvents(w io.Writer, wb *ucs.WatchBlock) error {
	ctx := context.Background()
	for {
		ev, err := wb.Dequeue(ctx, time.Second)
		if err == nil {
			fmt.Fprintln(w, eventJSON(ev))
			continue
		}
		if !errors.Is(err, ucs.ErrQueueEmpty) {
			return err
		}
		select {
		case <-wb.Done():
			if wb.Len() == 0 {
				return wb.Err()
			}
		default:
		}
	}
}

func eventJSON(ev ucs.ChangeEvent) string {
	b := ucs.Body{}.
		Set("eventId", ev.EventID).
		Set("changes", ev.ChangeList)
	if ev.MO != nil {
		if js := ev.MO.JSON(); js != "" {
			b = b.SetRaw("object", js)
		}
	}
	return b.Res()
}
