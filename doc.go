// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package ucs is a client for the XML-over-HTTP management API of UCS
// compute and fabric managers.
//
// The library authenticates a session, queries and mutates the remote
// configuration tree as managed objects, batches changes in transactions,
// watches change events and reconciles object state between environments.
//
// # Quick Start
//
//	client, err := ucs.NewClient("10.0.0.10",
//	    ucs.Username("admin"),
//	    ucs.Password("secret"),
//	    ucs.VerifyCertificate(false),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx := context.Background()
//	if err := client.Login(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Logout(ctx)
//
//	blades, err := client.ConfigResolveClass(ctx, "computeBlade",
//	    ucs.Eq("computeBlade", "operState", "ok"))
//	for _, b := range blades {
//	    fmt.Println(b.Dn(), b.Get("Model"))
//	}
//
// # Managed Objects
//
// A ManagedObject is a property bag checked against the schema Registry.
// Properties set locally are tracked as dirty, and mutations only send the
// dirty ones:
//
//	vlan := ucs.NewManagedObject(client.Registry(), "fabricVlan").
//	    Set("Name", "web").
//	    Set("Id", "100")
//	_ = vlan.ComposeDn("fabric/lan")
//	_, err = client.AddManagedObject(ctx, vlan, true)
//
// # Filters
//
// Filters are built from leaf constructors (Eq, Ne, Gt, Wcard, Bw, ...) and
// combined with And, Or and Not. A composite with a single child collapses
// to that child. LimitComponents splits large conjunctions and disjunctions
// so no element exceeds the server's child limit.
//
// # Transactions
//
//	_ = client.StartTransaction()
//	_, _ = client.SetManagedObject(ctx, a)
//	_, _ = client.SetManagedObject(ctx, b)
//	mos, err := client.CompleteTransaction(ctx) // one configConfMos
//
// # Event Watches
//
// AddEventHandler registers a watcher fed by the server event stream, or a
// poll watcher when PollInterval is set. Events are queued per watcher in a
// bounded FIFO; a full queue drops the newest event and flags the overflow.
//
// # Diff and Sync
//
// CompareManagedObject compares object lists by DN and SyncManagedObject
// pushes the differences in one batch, honouring an optional PolicyTable.
//
// # Error Handling
//
// Callers branch on *ValidationError (bad arguments, nothing was sent),
// *ProtocolError (server error code) and *TransportError (HTTP failure,
// unwrapping to the HTTP stack's error), plus sentinel errors for errors.Is.
//
// # Thread Safety
//
// Client is safe for concurrent use. A transaction belongs to the session,
// so concurrent callers share it. ManagedObject is not safe for concurrent
// mutation.
//
// # References
//
//   - gjson: https://github.com/tidwall/gjson
//   - sjson: https://github.com/tidwall/sjson
//   - backoff: https://github.com/cenkalti/backoff
//   - diff: https://github.com/r3labs/diff
package ucs
