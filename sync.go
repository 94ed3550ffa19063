// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"strings"
)

// SyncOptions tune SyncManagedObject
type SyncOptions struct {
	// DeleteNotPresent sends SideRemove diffs as deletions; they are
	// skipped otherwise
	DeleteNotPresent bool

	// NoVersionFilter sends properties the server version does not support
	NoVersionFilter bool

	// Policies is consulted per class before anything else
	Policies *PolicyTable
}

// DeleteNotPresent deletes objects found only on the server
func DeleteNotPresent() func(*SyncOptions) {
	return func(o *SyncOptions) { o.DeleteNotPresent = true }
}

// SyncNoVersionFilter keeps properties newer than the server version
func SyncNoVersionFilter() func(*SyncOptions) {
	return func(o *SyncOptions) { o.NoVersionFilter = true }
}

// WithPolicyTable applies t to every diff
func WithPolicyTable(t *PolicyTable) func(*SyncOptions) {
	return func(o *SyncOptions) { o.Policies = t }
}

// SyncManagedObject applies diffs produced by CompareManagedObject (with the
// server as reference) so that the server matches the candidate.
//
// Per diff, in order: an ignoring policy skips it; a SideRemove is sent as a
// deletion only with DeleteNotPresent; an add sends every configurable
// property and a modify only the differing ones; excluded properties are
// dropped; then properties newer than the server version are dropped unless
// NoVersionFilter. All mutations go out in one configConfMos, except that
// deletes of objects replaced by another class at the same DN are sent
// first in a request of their own. Nothing to send returns nil, nil.
//
// Example:
//
//	ref, _ := client.ConfigResolveClass(ctx, "fabricVlan", nil)
//	diffs, _ := ucs.CompareManagedObject(client.Registry(), ref, desired)
//	mos, err := client.SyncManagedObject(ctx, diffs, ucs.DeleteNotPresent())
func (c *Client) SyncManagedObject(ctx context.Context, diffs []*MoDiff, opts ...func(*SyncOptions)) ([]*ManagedObject, error) {
	var o SyncOptions
	for _, opt := range opts {
		opt(&o)
	}
	version := c.Version()

	// dn -> class of every object to be added, for spotting class changes
	added := make(map[string]string)
	for _, d := range diffs {
		if d != nil && d.InputObject != nil && d.SideIndicator == SideAddModify {
			added[d.Dn] = d.InputObject.ClassID()
		}
	}

	replaced := NewConfigMap()
	cm := NewConfigMap()
	for _, d := range diffs {
		if d == nil || d.InputObject == nil || d.SideIndicator == SideEqual {
			continue
		}
		mo := d.InputObject
		pol, hasPolicy := o.Policies.Lookup(mo.ClassID(), version)
		if hasPolicy && pol.Ignore {
			c.logger.Info(ctx, "UCS sync skipped by policy", "dn", d.Dn, "class", mo.ClassID(), "reason", pol.Reason)
			continue
		}

		if d.SideIndicator == SideRemove {
			if !o.DeleteNotPresent {
				continue
			}
			del := NewManagedObject(c.registry, mo.ClassID()).SetDn(d.Dn)
			del.Set(PropStatus, StatusDeleted)
			if cls, ok := added[d.Dn]; ok && !strings.EqualFold(cls, mo.ClassID()) {
				replaced.Put(d.Dn, del)
			} else {
				cm.Put(d.Dn, del)
			}
			continue
		}

		if meta := mo.Meta(); meta != nil && !o.NoVersionFilter && version != nil &&
			meta.MinVersion != nil && version.Less(meta.MinVersion) {
			c.logger.Warn(ctx, "UCS sync skipped, class not supported by server",
				"dn", d.Dn, "class", mo.ClassID(), "server_version", version.String())
			continue
		}

		out := NewManagedObject(c.registry, mo.ClassID()).SetDn(d.Dn)
		var names []string
		status := StatusModified
		if d.IsAdd() {
			status = StatusCreatedModified
			names = mo.PropertyNames()
		} else {
			names = d.DiffProperties
			if hasPolicy && pol.Status != "" {
				status = pol.Status
			}
		}
		for _, name := range names {
			if !c.syncable(mo, name, version, &o) {
				continue
			}
			if hasPolicy && pol.excludes(name) {
				continue
			}
			v, ok := mo.Lookup(name)
			if !ok {
				continue
			}
			out.Set(name, v)
		}
		out.Set(PropStatus, status)
		cm.Put(d.Dn, out)
	}

	if cm.Len() == 0 && replaced.Len() == 0 {
		c.logger.Debug(ctx, "UCS sync has nothing to send", "host", c.Host)
		return nil, nil
	}

	var out []*ManagedObject
	if replaced.Len() > 0 {
		c.logger.Info(ctx, "UCS sync removing objects whose class changed", "host", c.Host, "objects", replaced.Len())
		mos, err := c.ConfigConfMos(ctx, replaced)
		if err != nil {
			return nil, err
		}
		out = append(out, mos...)
	}
	if cm.Len() > 0 {
		c.logger.Info(ctx, "UCS sync", "host", c.Host, "objects", cm.Len())
		mos, err := c.ConfigConfMos(ctx, cm)
		if err != nil {
			return out, err
		}
		out = append(out, mos...)
	}
	return out, nil
}

// syncable reports whether property name of mo may be sent to the server
func (c *Client) syncable(mo *ManagedObject, name string, version *Version, o *SyncOptions) bool {
	switch name {
	case PropDn, PropRn, PropStatus, PropChildAction:
		return false
	}
	meta := mo.Meta()
	p, known := meta.Prop(name)
	if !known {
		return meta == nil
	}
	if !p.IsConfig() {
		return false
	}
	if !o.NoVersionFilter && version != nil && p.MinVersion != nil && version.Less(p.MinVersion) {
		c.logger.Debug(context.Background(), "UCS sync dropped property newer than server",
			"class", mo.ClassID(),
			"property", p.Name,
			"min_version", p.MinVersion.String())
		return false
	}
	return true
}
