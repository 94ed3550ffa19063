// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/r3labs/diff/v3"
)

// SideIndicator tells on which side of a comparison an object differs
type SideIndicator string

const (
	// SideRemove marks an object present only in the reference
	SideRemove SideIndicator = "<="

	// SideAddModify marks an object missing from the reference or differing from it
	SideAddModify SideIndicator = "=>"

	// SideEqual marks an object identical on both sides
	SideEqual SideIndicator = "=="
)

// MoDiff is one result of CompareManagedObject.
//
// For SideRemove, InputObject is the reference object. For SideAddModify
// and SideEqual it is the candidate object after DN translation.
// DiffProperties is nil for an object that does not exist in the reference;
// otherwise it lists the differing properties with their reference and
// candidate values.
type MoDiff struct {
	Dn             string
	InputObject    *ManagedObject
	SideIndicator  SideIndicator
	DiffProperties []string
	RefValues      map[string]string
	DiffValues     map[string]string
}

// IsAdd reports whether the diff creates an object missing from the reference
func (d *MoDiff) IsAdd() bool {
	return d.SideIndicator == SideAddModify && d.DiffProperties == nil
}

// JSON renders the diff for reports
func (d *MoDiff) JSON() string {
	b := Body{}.
		Set("dn", d.Dn).
		Set("side", string(d.SideIndicator))
	if d.InputObject != nil {
		b = b.Set("classId", d.InputObject.ClassID())
	}
	for _, p := range d.DiffProperties {
		b = b.Set("properties.-1", p).
			Set("ref."+escapeKey(p), d.RefValues[p]).
			Set("diff."+escapeKey(p), d.DiffValues[p])
	}
	return b.Res()
}

// String returns a one-line summary such as "=> org-root/ls-web01 [Descr]"
func (d *MoDiff) String() string {
	if len(d.DiffProperties) == 0 {
		return fmt.Sprintf("%s %s", d.SideIndicator, d.Dn)
	}
	return fmt.Sprintf("%s %s %v", d.SideIndicator, d.Dn, d.DiffProperties)
}

// DnTranslation maps candidate DNs before comparison.
//
// DnMap renames specific DNs (and their subtrees); FromOrg/ToOrg move an
// org-scoped subtree. DnMap takes precedence.
type DnTranslation struct {
	FromOrg string
	ToOrg   string
	DnMap   map[string]string
}

// Apply returns the translated form of dn
func (t *DnTranslation) Apply(dn string) string {
	if t == nil {
		return dn
	}
	if to, ok := t.DnMap[dn]; ok {
		return to
	}
	// longest mapped ancestor wins
	best := ""
	for from := range t.DnMap {
		if strings.HasPrefix(dn, from+"/") && len(from) > len(best) {
			best = from
		}
	}
	if best != "" {
		return t.DnMap[best] + dn[len(best):]
	}
	if t.FromOrg != "" && t.ToOrg != "" {
		if dn == t.FromOrg {
			return t.ToOrg
		}
		if strings.HasPrefix(dn, t.FromOrg+"/") {
			return t.ToOrg + dn[len(t.FromOrg):]
		}
	}
	return dn
}

// translate returns a copy of mo moved to its translated dn with the naming
// properties re-derived from the new rn.
func (t *DnTranslation) translate(mo *ManagedObject) *ManagedObject {
	dn := t.Apply(mo.Dn())
	if dn == mo.Dn() {
		return mo
	}
	out := mo.Clone()
	out.SetDn(dn)
	if meta := out.Meta(); meta != nil && meta.Rn != "" {
		if vals, ok := ParseRn(meta.Rn, RnOf(dn)); ok {
			for _, p := range meta.NamingProps() {
				if v, ok := vals[p.XMLAttribute]; ok {
					out.Set(p.Name, v)
				}
			}
		}
	}
	return out
}

// CompareOptions tune CompareManagedObject
type CompareOptions struct {
	// IncludeEqual also reports objects identical on both sides
	IncludeEqual bool

	// IncludeOperational also compares read-only properties
	IncludeOperational bool

	// NoVersionFilter compares properties the Version does not support
	NoVersionFilter bool

	// Version drops properties newer than this server version; nil keeps all
	Version *Version

	// Translation is applied to candidate DNs first
	Translation *DnTranslation
}

// IncludeEqual reports equal objects as SideEqual diffs
func IncludeEqual() func(*CompareOptions) {
	return func(o *CompareOptions) { o.IncludeEqual = true }
}

// IncludeOperational compares read-only properties as well
func IncludeOperational() func(*CompareOptions) {
	return func(o *CompareOptions) { o.IncludeOperational = true }
}

// NoVersionFilter disables filtering properties by server version
func NoVersionFilter() func(*CompareOptions) {
	return func(o *CompareOptions) { o.NoVersionFilter = true }
}

// CompareVersion compares only properties supported by v
func CompareVersion(v *Version) func(*CompareOptions) {
	return func(o *CompareOptions) { o.Version = v }
}

// Translate applies t to the candidate DNs before comparison
func Translate(t DnTranslation) func(*CompareOptions) {
	return func(o *CompareOptions) { o.Translation = &t }
}

// CompareManagedObject compares two object lists by DN.
//
// Both lists are flattened (children included) and objects of output-only
// or read-only classes are ignored. The result is ordered by DN; a class
// mismatch on one DN yields a SideRemove followed by a SideAddModify.
//
// Example:
//
//	ref, _ := prod.ConfigResolveClass(ctx, "fabricVlan", nil)
//	cand, _ := lab.ConfigResolveClass(ctx, "fabricVlan", nil)
//	diffs, err := ucs.CompareManagedObject(prod.Registry(), ref, cand,
//	    ucs.CompareVersion(prod.Version()))
//	for _, d := range diffs {
//	    fmt.Println(d)
//	}
func CompareManagedObject(reg *Registry, reference, candidate []*ManagedObject, opts ...func(*CompareOptions)) ([]*MoDiff, error) {
	var o CompareOptions
	for _, opt := range opts {
		opt(&o)
	}
	if reg == nil {
		reg = DefaultRegistry()
	}

	refIdx := indexByDn(reg, reference, nil)
	candIdx := indexByDn(reg, candidate, o.Translation)

	dns := make([]string, 0, len(refIdx)+len(candIdx))
	for dn := range refIdx {
		dns = append(dns, dn)
	}
	for dn := range candIdx {
		if _, ok := refIdx[dn]; !ok {
			dns = append(dns, dn)
		}
	}
	sort.Strings(dns)

	var out []*MoDiff
	for _, dn := range dns {
		ref, inRef := refIdx[dn]
		cand, inCand := candIdx[dn]
		switch {
		case !inCand:
			out = append(out, &MoDiff{Dn: dn, InputObject: ref, SideIndicator: SideRemove})
		case !inRef:
			out = append(out, &MoDiff{Dn: dn, InputObject: cand, SideIndicator: SideAddModify})
		case !strings.EqualFold(ref.ClassID(), cand.ClassID()):
			out = append(out,
				&MoDiff{Dn: dn, InputObject: ref, SideIndicator: SideRemove},
				&MoDiff{Dn: dn, InputObject: cand, SideIndicator: SideAddModify})
		default:
			d, err := compareProps(ref, cand, &o)
			if err != nil {
				return nil, fmt.Errorf("compare %s: %w", dn, err)
			}
			if d.SideIndicator == SideEqual && !o.IncludeEqual {
				continue
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// indexByDn flattens mos into a map keyed by (translated) dn, skipping
// classes that can never be configured.
func indexByDn(reg *Registry, mos []*ManagedObject, t *DnTranslation) map[string]*ManagedObject {
	idx := make(map[string]*ManagedObject)
	for _, root := range mos {
		if root == nil {
			continue
		}
		root.Walk(func(mo *ManagedObject) {
			if mo.Dn() == "" {
				return
			}
			meta := mo.Meta()
			if meta == nil {
				meta, _ = reg.Class(mo.ClassID())
			}
			if meta != nil && (meta.IsOutputOnly() || meta.IsReadOnly()) {
				return
			}
			if t != nil {
				mo = t.translate(mo)
			}
			idx[mo.Dn()] = mo
		})
	}
	return idx
}

// comparableProps returns the properties of mo that take part in a comparison
func comparableProps(mo *ManagedObject, o *CompareOptions) map[string]string {
	out := make(map[string]string)
	meta := mo.Meta()
	for name, v := range mo.Props() {
		switch name {
		case PropDn, PropRn, PropStatus, PropChildAction:
			continue
		}
		p, known := meta.Prop(name)
		if !known {
			// extension properties of known classes count as operational
			if meta != nil && !o.IncludeOperational {
				continue
			}
			out[name] = v
			continue
		}
		if !p.IsConfig() && !o.IncludeOperational {
			continue
		}
		if !o.NoVersionFilter && o.Version != nil && p.MinVersion != nil && o.Version.Less(p.MinVersion) {
			continue
		}
		out[name] = v
	}
	return out
}

func compareProps(ref, cand *ManagedObject, o *CompareOptions) (*MoDiff, error) {
	changes, err := diff.Diff(comparableProps(ref, o), comparableProps(cand, o))
	if err != nil {
		return nil, err
	}
	d := &MoDiff{Dn: cand.Dn(), InputObject: cand, SideIndicator: SideEqual}
	for _, ch := range changes {
		// a property the candidate lacks cannot be synced
		if ch.Type == diff.DELETE || len(ch.Path) == 0 {
			continue
		}
		name := ch.Path[0]
		if d.RefValues == nil {
			d.RefValues = make(map[string]string)
			d.DiffValues = make(map[string]string)
		}
		d.DiffProperties = append(d.DiffProperties, name)
		d.RefValues[name] = ref.Get(name)
		d.DiffValues[name] = cand.Get(name)
	}
	if len(d.DiffProperties) > 0 {
		sort.Strings(d.DiffProperties)
		d.SideIndicator = SideAddModify
	}
	return d, nil
}
