// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// SyncPolicy adjusts how SyncManagedObject treats the objects of one class.
//
// A policy applies when the class matches (case-insensitive, "*" matches
// every class) and the server version lies within [MinVersion, MaxVersion];
// nil bounds are open.
type SyncPolicy struct {
	Class      string
	MinVersion *Version
	MaxVersion *Version

	// Ignore skips the class entirely; Reason is logged
	Ignore bool
	Reason string

	// Status replaces the status sent for modified objects
	Status string

	// Exclude lists properties never sent
	Exclude []string
}

func (p *SyncPolicy) appliesTo(class string, v *Version) bool {
	if p.Class != "*" && !strings.EqualFold(p.Class, class) {
		return false
	}
	if v == nil {
		return p.MinVersion == nil && p.MaxVersion == nil
	}
	if p.MinVersion != nil && v.Less(p.MinVersion) {
		return false
	}
	if p.MaxVersion != nil && p.MaxVersion.Less(v) {
		return false
	}
	return true
}

func (p *SyncPolicy) excludes(name string) bool {
	for _, e := range p.Exclude {
		if strings.EqualFold(e, name) {
			return true
		}
	}
	return false
}

// PolicyTable is an ordered list of sync policies; the first applicable
// policy of a class wins.
type PolicyTable struct {
	mu       sync.RWMutex
	policies []SyncPolicy
}

// NewPolicyTable creates a table holding policies in order
func NewPolicyTable(policies ...SyncPolicy) *PolicyTable {
	return &PolicyTable{policies: append([]SyncPolicy(nil), policies...)}
}

// Add appends a policy
func (t *PolicyTable) Add(p SyncPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policies = append(t.policies, p)
}

// Len returns the number of policies
func (t *PolicyTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.policies)
}

// Lookup returns the first policy applying to class on server version v
func (t *PolicyTable) Lookup(class string, v *Version) (SyncPolicy, bool) {
	if t == nil {
		return SyncPolicy{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.policies {
		if t.policies[i].appliesTo(class, v) {
			return t.policies[i], true
		}
	}
	return SyncPolicy{}, false
}

// LoadPolicyJSON builds a policy table from a JSON document:
//
//	{
//	  "policies": [
//	    {"class": "lsServer", "exclude": ["Uuid"], "status": "created,modified"},
//	    {"class": "fabricVlan", "maxVersion": "2.0(1m)",
//	     "ignore": true, "reason": "vlan sync needs 2.1 or later"}
//	  ]
//	}
//
// A top-level array of policies is accepted as well.
func LoadPolicyJSON(data []byte) (*PolicyTable, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("policy: invalid JSON document")
	}
	doc := gjson.ParseBytes(data)
	list := doc
	if !doc.IsArray() {
		list = doc.Get("policies")
	}

	t := NewPolicyTable()
	var loadErr error
	list.ForEach(func(_, p gjson.Result) bool {
		pol := SyncPolicy{
			Class:  p.Get("class").String(),
			Ignore: p.Get("ignore").Bool(),
			Reason: p.Get("reason").String(),
			Status: p.Get("status").String(),
		}
		if pol.Class == "" {
			loadErr = fmt.Errorf("policy: entry without class: %s", p.Raw)
			return false
		}
		for _, bound := range []struct {
			key string
			dst **Version
		}{{"minVersion", &pol.MinVersion}, {"maxVersion", &pol.MaxVersion}} {
			if s := p.Get(bound.key).String(); s != "" {
				v, err := ParseVersion(s)
				if err != nil {
					loadErr = fmt.Errorf("policy: class %s %s: %w", pol.Class, bound.key, err)
					return false
				}
				*bound.dst = v
			}
		}
		for _, e := range p.Get("exclude").Array() {
			pol.Exclude = append(pol.Exclude, e.String())
		}
		t.Add(pol)
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return t, nil
}
