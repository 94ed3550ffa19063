// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import "time"

// Req represents a request modifier
//
// This struct is used to apply request-specific options via functional modifiers.
// Operation parameters (dns, class ids, objects) are passed directly to methods.
//
// Example:
//
//	// Resolve a subtree with a custom timeout
//	mo, err := client.ConfigResolveDn(ctx, "org-root/ls-web01",
//	    ucs.Hierarchical(true),
//	    ucs.Timeout(30*time.Second))
type Req struct {
	// Timeout is the request-specific timeout
	// Overrides client default timeout if set
	Timeout time.Duration

	// Hierarchical requests the whole subtree of every resolved object
	Hierarchical bool
}

func newReq(mods []func(*Req)) *Req {
	req := &Req{}
	for _, mod := range mods {
		mod(req)
	}
	return req
}

func (r *Req) hierarchical() string {
	if r.Hierarchical {
		return "true"
	}
	return "false"
}
