// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"fmt"
	"strings"
)

// Named operations are typed parameter bindings around Dispatch. Each builds
// the request envelope, dispatches it and unpacks the outputs.

// ConfigResolveDn returns the object at dn, wrapping ErrObjectNotFound when
// the server has none.
//
// Example:
//
//	sp, err := client.ConfigResolveDn(ctx, "org-root/ls-web01", ucs.Hierarchical(true))
//	if errors.Is(err, ucs.ErrObjectNotFound) {
//	    // create it
//	}
func (c *Client) ConfigResolveDn(ctx context.Context, dn string, mods ...func(*Req)) (*ManagedObject, error) {
	if strings.TrimSpace(dn) == "" {
		return nil, newValidationError(MethodConfigResolveDn, "dn cannot be empty")
	}
	req := newReq(mods)
	m := NewExternalMethod(c.registry, MethodConfigResolveDn).
		SetParam("dn", dn).
		SetParam("inHierarchical", req.hierarchical())
	resp, err := c.Dispatch(ctx, m, WriteAll, mods...)
	if err != nil {
		return nil, err
	}
	mos := flattenManagedObjects(resp.Element("outConfig"))
	if len(mos) == 0 {
		return nil, fmt.Errorf("ucs: %s: %w: %s", MethodConfigResolveDn, ErrObjectNotFound, dn)
	}
	return mos[0], nil
}

// ConfigResolveDns resolves several dns at once. Dns the server does not
// know are returned in unresolved.
func (c *Client) ConfigResolveDns(ctx context.Context, dns []string, mods ...func(*Req)) (mos []*ManagedObject, unresolved []string, err error) {
	if len(dns) == 0 {
		return nil, nil, newValidationError(MethodConfigResolveDns, "dns cannot be empty")
	}
	req := newReq(mods)
	m := NewExternalMethod(c.registry, MethodConfigResolveDns).
		SetParam("inHierarchical", req.hierarchical()).
		SetElement("inDns", NewDnSet(dns...))
	resp, err := c.Dispatch(ctx, m, WriteAll, mods...)
	if err != nil {
		return nil, nil, err
	}
	if set, ok := resp.Element("outUnresolved").(*ElementSet); ok {
		unresolved = set.Values()
	}
	return flattenManagedObjects(resp.Element("outConfigs")), unresolved, nil
}

// ConfigResolveClass returns the objects of classID matching filter; a nil
// filter returns all of them.
//
// Example:
//
//	f := ucs.And(
//	    ucs.Eq("lsServer", "type", "instance"),
//	    ucs.Wcard("lsServer", "name", "^web"),
//	)
//	servers, err := client.ConfigResolveClass(ctx, "lsServer", f)
func (c *Client) ConfigResolveClass(ctx context.Context, classID string, filter *Filter, mods ...func(*Req)) ([]*ManagedObject, error) {
	if strings.TrimSpace(classID) == "" {
		return nil, newValidationError(MethodConfigResolveClass, "class id cannot be empty")
	}
	req := newReq(mods)
	m := NewExternalMethod(c.registry, MethodConfigResolveClass).
		SetParam("classId", c.wireClass(classID)).
		SetParam("inHierarchical", req.hierarchical())
	if filter != nil {
		m.SetElement("inFilter", Wrap(filter))
	}
	resp, err := c.Dispatch(ctx, m, WriteAll, mods...)
	if err != nil {
		return nil, err
	}
	return flattenManagedObjects(resp.Element("outConfigs")), nil
}

// ConfigResolveClasses returns the objects of every class in classIDs
func (c *Client) ConfigResolveClasses(ctx context.Context, classIDs []string, mods ...func(*Req)) ([]*ManagedObject, error) {
	if len(classIDs) == 0 {
		return nil, newValidationError(MethodConfigResolveClasses, "class ids cannot be empty")
	}
	ids := make([]string, 0, len(classIDs))
	for _, id := range classIDs {
		ids = append(ids, c.wireClass(id))
	}
	req := newReq(mods)
	m := NewExternalMethod(c.registry, MethodConfigResolveClasses).
		SetParam("inHierarchical", req.hierarchical()).
		SetElement("inIds", NewClassIDSet(ids...))
	resp, err := c.Dispatch(ctx, m, WriteAll, mods...)
	if err != nil {
		return nil, err
	}
	return flattenManagedObjects(resp.Element("outConfigs")), nil
}

// ConfigResolveChildren returns the children of parentDn, optionally limited
// to classID and filter.
func (c *Client) ConfigResolveChildren(ctx context.Context, classID, parentDn string, filter *Filter, mods ...func(*Req)) ([]*ManagedObject, error) {
	if strings.TrimSpace(parentDn) == "" {
		return nil, newValidationError(MethodConfigResolveChildren, "parent dn cannot be empty")
	}
	req := newReq(mods)
	m := NewExternalMethod(c.registry, MethodConfigResolveChildren).
		SetParam("classId", c.wireClass(classID)).
		SetParam("inDn", parentDn).
		SetParam("inHierarchical", req.hierarchical())
	if filter != nil {
		m.SetElement("inFilter", Wrap(filter))
	}
	resp, err := c.Dispatch(ctx, m, WriteAll, mods...)
	if err != nil {
		return nil, err
	}
	return flattenManagedObjects(resp.Element("outConfigs")), nil
}

// ConfigConfMo sends the dirty properties of mo to dn and returns the
// resulting object. Inside a transaction the call is buffered and the echo
// of mo is returned.
func (c *Client) ConfigConfMo(ctx context.Context, dn string, mo *ManagedObject, mods ...func(*Req)) (*ManagedObject, error) {
	if mo == nil {
		return nil, newValidationError(MethodConfigConfMo, "managed object cannot be nil")
	}
	if dn == "" {
		dn = mo.Dn()
	}
	if dn == "" {
		return nil, newValidationError(MethodConfigConfMo, "object %s has no dn", mo)
	}
	req := newReq(mods)
	m := NewExternalMethod(c.registry, MethodConfigConfMo).
		SetParam("dn", dn).
		SetParam("inHierarchical", req.hierarchical()).
		SetElement("inConfig", &ConfigConfig{MO: mo})
	resp, err := c.Dispatch(ctx, m, WriteDirty, mods...)
	if err != nil {
		return nil, err
	}
	mos := flattenManagedObjects(resp.Element("outConfig"))
	if len(mos) == 0 {
		return nil, nil
	}
	return mos[0], nil
}

// ConfigConfMos sends the dirty properties of every object in cm in one
// request.
func (c *Client) ConfigConfMos(ctx context.Context, cm *ConfigMap, mods ...func(*Req)) ([]*ManagedObject, error) {
	if cm == nil || cm.Len() == 0 {
		return nil, newValidationError(MethodConfigConfMos, "config map cannot be empty")
	}
	req := newReq(mods)
	m := NewExternalMethod(c.registry, MethodConfigConfMos).
		SetParam("inHierarchical", req.hierarchical()).
		SetElement("inConfigs", cm)
	resp, err := c.Dispatch(ctx, m, WriteDirty, mods...)
	if err != nil {
		return nil, err
	}
	return flattenManagedObjects(resp.Element("outConfigs")), nil
}

// GetManagedObject returns the objects of classID whose properties equal
// every value in props. Property names may be canonical ("OperState") or
// wire names ("operState"). An empty props map returns the whole class.
//
// Example:
//
//	up, err := client.GetManagedObject(ctx, "computeBlade", map[string]string{
//	    "OperState": "ok",
//	    "ChassisId": "1",
//	})
func (c *Client) GetManagedObject(ctx context.Context, classID string, props map[string]string, mods ...func(*Req)) ([]*ManagedObject, error) {
	leaves := c.propertyLeaves(classID, props, OpEq)
	return c.ConfigResolveClass(ctx, classID, LimitComponents(OpAnd, leaves, c.MaxFilterComponents), mods...)
}

// GetManagedObjectsByDn returns the objects of classID whose dn is in dns.
// Large dn lists are split into nested or-groups so that no filter element
// exceeds MaxFilterComponents children.
func (c *Client) GetManagedObjectsByDn(ctx context.Context, classID string, dns []string, mods ...func(*Req)) ([]*ManagedObject, error) {
	if len(dns) == 0 {
		return nil, newValidationError(MethodConfigResolveClass, "dns cannot be empty")
	}
	class := c.wireClass(classID)
	leaves := make([]*Filter, 0, len(dns))
	for _, dn := range dns {
		leaves = append(leaves, Eq(class, "dn", dn))
	}
	return c.ConfigResolveClass(ctx, classID, LimitComponents(OpOr, leaves, c.MaxFilterComponents), mods...)
}

// AddManagedObject creates mo on the server. With modifyPresent the object
// is created or, when it exists, modified.
func (c *Client) AddManagedObject(ctx context.Context, mo *ManagedObject, modifyPresent bool, mods ...func(*Req)) (*ManagedObject, error) {
	if mo == nil {
		return nil, newValidationError("AddManagedObject", "managed object cannot be nil")
	}
	status := StatusCreated
	if modifyPresent {
		status = StatusCreatedModified
	}
	mo.Set(PropStatus, status)
	return c.ConfigConfMo(ctx, mo.Dn(), mo, mods...)
}

// SetManagedObject sends the dirty properties of an existing object
func (c *Client) SetManagedObject(ctx context.Context, mo *ManagedObject, mods ...func(*Req)) (*ManagedObject, error) {
	if mo == nil {
		return nil, newValidationError("SetManagedObject", "managed object cannot be nil")
	}
	mo.Set(PropStatus, StatusModified)
	return c.ConfigConfMo(ctx, mo.Dn(), mo, mods...)
}

// RemoveManagedObject deletes the object at mo's dn
func (c *Client) RemoveManagedObject(ctx context.Context, mo *ManagedObject, mods ...func(*Req)) (*ManagedObject, error) {
	if mo == nil || mo.Dn() == "" {
		return nil, newValidationError("RemoveManagedObject", "managed object with a dn is required")
	}
	del := NewManagedObject(c.registry, mo.ClassID()).SetDn(mo.Dn())
	del.Set(PropStatus, StatusDeleted)
	return c.ConfigConfMo(ctx, mo.Dn(), del, mods...)
}

// propertyLeaves builds one leaf per property sorted by name
func (c *Client) propertyLeaves(classID string, props map[string]string, op FilterOp) []*Filter {
	f := PropertyFilter(c.registry, classID, props, op)
	return flattenAnd(f)
}

// flattenAnd undoes the and-nesting PropertyFilter produces so the leaves can
// be regrouped under a different component limit.
func flattenAnd(f *Filter) []*Filter {
	if f == nil {
		return nil
	}
	if f.Op != OpAnd {
		return []*Filter{f}
	}
	var out []*Filter
	for _, ch := range f.Children {
		out = append(out, flattenAnd(ch)...)
	}
	return out
}

// wireClass maps a class id to its wire tag
func (c *Client) wireClass(classID string) string {
	if meta, ok := c.registry.Class(classID); ok {
		return meta.XMLName
	}
	return classID
}
