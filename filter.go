// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"encoding/xml"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// FilterOp is the kind of a filter node; it is also the node's wire tag
type FilterOp string

const (
	OpFilter  FilterOp = "filter"
	OpAnd     FilterOp = "and"
	OpOr      FilterOp = "or"
	OpNot     FilterOp = "not"
	OpEq      FilterOp = "eq"
	OpNe      FilterOp = "ne"
	OpGt      FilterOp = "gt"
	OpGe      FilterOp = "ge"
	OpLt      FilterOp = "lt"
	OpLe      FilterOp = "le"
	OpBw      FilterOp = "bw"
	OpWcard   FilterOp = "wcard"
	OpAllbits FilterOp = "allbits"
	OpAnybit  FilterOp = "anybit"
)

var filterOps = []FilterOp{
	OpFilter, OpAnd, OpOr, OpNot,
	OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpBw, OpWcard, OpAllbits, OpAnybit,
}

// IsComposite reports whether nodes of this kind own children
func (op FilterOp) IsComposite() bool {
	return op == OpFilter || op == OpAnd || op == OpOr || op == OpNot
}

// DefaultMaxFilterComponents is the largest number of children the server
// accepts under a single filter element.
const DefaultMaxFilterComponents = 25

// Filter is a server-side predicate tree used to scope queries.
//
// Leaves carry (Class, Property, Value) and, for bw, SecondValue.
// Composites (and, or, not, filter) own ordered Children; the order is kept
// as built.
type Filter struct {
	Op          FilterOp
	Class       string
	Property    string
	Value       string
	SecondValue string
	Children    []*Filter
}

func leaf(op FilterOp, class, property, value string) *Filter {
	return &Filter{Op: op, Class: class, Property: property, Value: value}
}

// Eq matches objects whose property equals value
func Eq(class, property, value string) *Filter { return leaf(OpEq, class, property, value) }

// Ne matches objects whose property differs from value
func Ne(class, property, value string) *Filter { return leaf(OpNe, class, property, value) }

// Gt matches objects whose property is greater than value
func Gt(class, property, value string) *Filter { return leaf(OpGt, class, property, value) }

// Ge matches objects whose property is greater than or equal to value
func Ge(class, property, value string) *Filter { return leaf(OpGe, class, property, value) }

// Lt matches objects whose property is less than value
func Lt(class, property, value string) *Filter { return leaf(OpLt, class, property, value) }

// Le matches objects whose property is less than or equal to value
func Le(class, property, value string) *Filter { return leaf(OpLe, class, property, value) }

// Wcard matches objects whose property matches the regular expression value
func Wcard(class, property, value string) *Filter { return leaf(OpWcard, class, property, value) }

// Allbits matches objects whose bitmask property has every flag of value set
func Allbits(class, property, value string) *Filter { return leaf(OpAllbits, class, property, value) }

// Anybit matches objects whose bitmask property has any flag of value set
func Anybit(class, property, value string) *Filter { return leaf(OpAnybit, class, property, value) }

// Bw matches objects whose property lies between first and second, inclusive
func Bw(class, property, first, second string) *Filter {
	f := leaf(OpBw, class, property, first)
	f.SecondValue = second
	return f
}

// And conjoins the children, see Compose
func And(children ...*Filter) *Filter { return Compose(OpAnd, children...) }

// Or disjoins the children, see Compose
func Or(children ...*Filter) *Filter { return Compose(OpOr, children...) }

// Not negates child. A nil child yields nil.
func Not(child *Filter) *Filter {
	if child == nil {
		return nil
	}
	return &Filter{Op: OpNot, Children: []*Filter{child}}
}

// Wrap places f under the filter wrapper element. A nil f yields nil.
func Wrap(f *Filter) *Filter {
	if f == nil {
		return nil
	}
	if f.Op == OpFilter {
		return f
	}
	return &Filter{Op: OpFilter, Children: []*Filter{f}}
}

// Compose builds an and/or node over the non-nil children.
//
// No children yields nil (no filter at all), one child yields that child
// unchanged, several children yield a composite keeping their order.
func Compose(op FilterOp, children ...*Filter) *Filter {
	kept := make([]*Filter, 0, len(children))
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Filter{Op: op, Children: kept}
}

// LimitComponents composes children with op like Compose, but splits an
// oversized list into balanced nested groups so that no element has more
// than max children. op must be associative (and / or).
//
// Example:
//
//	leaves := make([]*ucs.Filter, 0, len(dns))
//	for _, dn := range dns {
//	    leaves = append(leaves, ucs.Eq("lsServer", "dn", dn))
//	}
//	f := ucs.LimitComponents(ucs.OpOr, leaves, ucs.DefaultMaxFilterComponents)
func LimitComponents(op FilterOp, children []*Filter, max int) *Filter {
	if max < 2 {
		max = 2
	}
	items := make([]*Filter, 0, len(children))
	for _, c := range children {
		if c != nil {
			items = append(items, c)
		}
	}
	for len(items) > max {
		groups := (len(items) + max - 1) / max
		base, extra := len(items)/groups, len(items)%groups
		next := make([]*Filter, 0, groups)
		idx := 0
		for g := 0; g < groups; g++ {
			size := base
			if g < extra {
				size++
			}
			next = append(next, Compose(op, items[idx:idx+size]...))
			idx += size
		}
		items = next
	}
	return Compose(op, items...)
}

// PropertyFilter builds one leaf of kind op per property and conjoins them.
// Property names are mapped to wire attribute names through reg. An empty
// map yields nil, meaning an unfiltered query.
func PropertyFilter(reg *Registry, class string, props map[string]string, op FilterOp) *Filter {
	if len(props) == 0 {
		return nil
	}
	var meta *ClassMeta
	if reg != nil {
		if m, ok := reg.Class(class); ok {
			meta = m
			class = m.Name
		}
	}
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)

	leaves := make([]*Filter, 0, len(names))
	for _, n := range names {
		prop := n
		if p, ok := meta.Prop(n); ok && p.XMLAttribute != "" {
			prop = p.XMLAttribute
		}
		leaves = append(leaves, leaf(op, class, prop, props[n]))
	}
	return LimitComponents(OpAnd, leaves, DefaultMaxFilterComponents)
}

// Tag returns the wire tag
func (f *Filter) Tag() string { return string(f.Op) }

// WriteXML serializes the filter tree
func (f *Filter) WriteXML(enc *xml.Encoder, opt WriteOption, tag string) error {
	if tag == "" {
		tag = f.Tag()
	}
	var a attrs
	if !f.Op.IsComposite() {
		a.add("class", f.Class)
		a.add("property", f.Property)
		if f.Op == OpBw {
			a.add("firstValue", f.Value)
			a.add("secondValue", f.SecondValue)
		} else {
			a.add("value", f.Value)
		}
	}
	if err := writeStart(enc, tag, a); err != nil {
		return err
	}
	for _, c := range f.Children {
		if err := c.WriteXML(enc, opt, ""); err != nil {
			return err
		}
	}
	return writeEnd(enc, tag)
}

func (f *Filter) loadXML(n *Node, ld *loader) {
	for _, attr := range n.Attrs {
		switch attr.Name.Local {
		case "class":
			f.Class = attr.Value
		case "property":
			f.Property = attr.Value
		case "value", "firstValue":
			f.Value = attr.Value
		case "secondValue":
			f.SecondValue = attr.Value
		}
	}
	for _, cn := range n.Children {
		if c, ok := ld.load(cn).(*Filter); ok {
			f.Children = append(f.Children, c)
		}
	}
}

// String returns the filter in wire form
func (f *Filter) String() string {
	s, err := MarshalElement(f, WriteAll)
	if err != nil {
		return "<invalid filter>"
	}
	return s
}

// Match evaluates the filter against mo on the client side.
// A leaf whose class differs from the object's class does not match.
func (f *Filter) Match(mo *ManagedObject) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpFilter, OpAnd:
		for _, c := range f.Children {
			if !c.Match(mo) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Children {
			if c.Match(mo) {
				return true
			}
		}
		return false
	case OpNot:
		if len(f.Children) == 0 {
			return true
		}
		return !f.Children[0].Match(mo)
	}

	if f.Class != "" && !strings.EqualFold(f.Class, mo.ClassID()) {
		return false
	}
	v, _ := mo.Lookup(f.Property)
	switch f.Op {
	case OpEq:
		return v == f.Value
	case OpNe:
		return v != f.Value
	case OpGt:
		return compareValues(v, f.Value) > 0
	case OpGe:
		return compareValues(v, f.Value) >= 0
	case OpLt:
		return compareValues(v, f.Value) < 0
	case OpLe:
		return compareValues(v, f.Value) <= 0
	case OpBw:
		return compareValues(v, f.Value) >= 0 && compareValues(v, f.SecondValue) <= 0
	case OpWcard:
		re, err := regexp.Compile(f.Value)
		if err != nil {
			return false
		}
		return re.MatchString(v)
	case OpAllbits:
		have := flagSet(v)
		for _, flag := range splitFlags(f.Value) {
			if !have[flag] {
				return false
			}
		}
		return true
	case OpAnybit:
		have := flagSet(v)
		for _, flag := range splitFlags(f.Value) {
			if have[flag] {
				return true
			}
		}
		return false
	}
	return false
}

// compareValues compares numerically when both values are numbers
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func splitFlags(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func flagSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range splitFlags(s) {
		set[f] = true
	}
	return set
}
