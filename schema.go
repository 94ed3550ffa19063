// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// PropAccess is the access mode of a managed object property
type PropAccess string

const (
	// AccessReadWrite marks a configurable property
	AccessReadWrite PropAccess = "ReadWrite"

	// AccessReadOnly marks an operational property maintained by the server
	AccessReadOnly PropAccess = "ReadOnly"

	// AccessNaming marks a property that is part of the object's RN
	AccessNaming PropAccess = "Naming"

	// AccessCreateOnly marks a property that can only be set on creation
	AccessCreateOnly PropAccess = "CreateOnly"

	// AccessInternal marks a property used by the server only
	AccessInternal PropAccess = "Internal"
)

// IOType tells whether a class can be sent to the server
type IOType string

const (
	IOInputOutput IOType = "InputOutput"
	IOOutputOnly  IOType = "OutputOnly"
	IOInputOnly   IOType = "InputOnly"
)

// Common property names known for every class
const (
	PropDn          = "Dn"
	PropRn          = "Rn"
	PropStatus      = "Status"
	PropChildAction = "ChildAction"
)

// Values of the Status property
const (
	StatusCreated         = "created"
	StatusModified        = "modified"
	StatusCreatedModified = "created,modified"
	StatusDeleted         = "deleted"
	StatusRemoved         = "removed"
)

// PropMeta describes one property of a class
type PropMeta struct {
	// Name is the canonical in-memory property name ("OperState")
	Name string

	// XMLAttribute is the wire attribute name ("operState").
	// Properties without one are never serialized.
	XMLAttribute string

	// Access is the access mode
	Access PropAccess

	// MinVersion is the first server version supporting the property (nil: all)
	MinVersion *Version
}

// IsConfig reports whether the property is configuration rather than operational state
func (p PropMeta) IsConfig() bool {
	return p.Access != AccessReadOnly && p.Access != AccessInternal
}

var commonProps = []PropMeta{
	{Name: PropDn, XMLAttribute: "dn", Access: AccessReadOnly},
	{Name: PropRn, XMLAttribute: "rn", Access: AccessReadOnly},
	{Name: PropStatus, XMLAttribute: "status", Access: AccessReadWrite},
	{Name: PropChildAction, XMLAttribute: "childAction", Access: AccessInternal},
}

var commonPropIndex = func() map[string]PropMeta {
	idx := make(map[string]PropMeta)
	for _, p := range commonProps {
		idx[strings.ToLower(p.Name)] = p
		idx[strings.ToLower(p.XMLAttribute)] = p
	}
	return idx
}()

// ClassMeta describes a managed object class
type ClassMeta struct {
	// Name is the canonical class id ("lsServer")
	Name string

	// XMLName is the wire element tag, defaults to Name
	XMLName string

	// Rn is the RN pattern, e.g. "ls-[name]"
	Rn string

	// IO tells whether the class is configurable
	IO IOType

	// Access lists the privileges that may modify the class
	Access []string

	// MinVersion is the first server version supporting the class
	MinVersion *Version

	// Props lists class specific properties in wire order
	Props []PropMeta

	index map[string]int
}

// Prop looks up a property by canonical or wire name, case-insensitively.
// Common properties (Dn, Rn, Status, ChildAction) are always found.
func (c *ClassMeta) Prop(name string) (PropMeta, bool) {
	key := strings.ToLower(name)
	if c != nil {
		if i, ok := c.index[key]; ok {
			return c.Props[i], true
		}
	}
	p, ok := commonPropIndex[key]
	return p, ok
}

// AllProps returns the common properties followed by the class properties
func (c *ClassMeta) AllProps() []PropMeta {
	out := make([]PropMeta, 0, len(commonProps)+len(c.Props))
	out = append(out, commonProps...)
	return append(out, c.Props...)
}

// NamingProps returns the properties embedded in the class RN
func (c *ClassMeta) NamingProps() []PropMeta {
	var out []PropMeta
	for _, p := range c.Props {
		if p.Access == AccessNaming {
			out = append(out, p)
		}
	}
	return out
}

// IsOutputOnly reports whether objects of the class can never be sent to the server
func (c *ClassMeta) IsOutputOnly() bool {
	return c.IO == IOOutputOnly
}

// IsReadOnly reports whether "read-only" is the only privilege granted on the class
func (c *ClassMeta) IsReadOnly() bool {
	return len(c.Access) == 1 && c.Access[0] == "read-only"
}

func (c *ClassMeta) build() error {
	if c.Name == "" {
		return fmt.Errorf("class name cannot be empty")
	}
	if c.XMLName == "" {
		c.XMLName = c.Name
	}
	if c.IO == "" {
		c.IO = IOInputOutput
	}
	c.index = make(map[string]int, 2*len(c.Props))
	for i, p := range c.Props {
		if p.Name == "" {
			return fmt.Errorf("class %s: property at index %d has no name", c.Name, i)
		}
		if _, dup := c.index[strings.ToLower(p.Name)]; dup {
			return fmt.Errorf("class %s: duplicate property %s", c.Name, p.Name)
		}
		if p.Access == "" {
			c.Props[i].Access = AccessReadWrite
		}
		c.index[strings.ToLower(p.Name)] = i
		if p.XMLAttribute != "" {
			c.index[strings.ToLower(p.XMLAttribute)] = i
		}
	}
	return nil
}

// ParamType is the type of an external method parameter
type ParamType string

const (
	ParamString       ParamType = "string"
	ParamConfigConfig ParamType = "ConfigConfig"
	ParamConfigMap    ParamType = "ConfigMap"
	ParamConfigSet    ParamType = "ConfigSet"
	ParamDnSet        ParamType = "DnSet"
	ParamClassIDSet   ParamType = "ClassIdSet"
	ParamIDSet        ParamType = "IdSet"
	ParamFilter       ParamType = "FilterFilter"
	ParamMethodSet    ParamType = "MethodSet"
)

// ParamMeta describes one parameter of an external method
type ParamMeta struct {
	// Name is the wire name, which is also the element tag for element params
	Name string

	// Type is the parameter type
	Type ParamType

	// Input is true for request parameters, false for response parameters
	Input bool
}

// IsElement reports whether the parameter is carried as a child element
func (p ParamMeta) IsElement() bool {
	return p.Type != ParamString && p.Type != ""
}

// MethodMeta describes an external method
type MethodMeta struct {
	// Name is the wire method name ("configResolveDn")
	Name string

	// Params lists the parameters in wire order
	Params []ParamMeta

	index map[string]int
}

// Param looks up a parameter by name, case-insensitively
func (m *MethodMeta) Param(name string) (ParamMeta, bool) {
	if m == nil {
		return ParamMeta{}, false
	}
	i, ok := m.index[strings.ToLower(name)]
	if !ok {
		return ParamMeta{}, false
	}
	return m.Params[i], true
}

func (m *MethodMeta) build() error {
	if m.Name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	m.index = make(map[string]int, len(m.Params))
	for i, p := range m.Params {
		if p.Type == "" {
			m.Params[i].Type = ParamString
		}
		m.index[strings.ToLower(p.Name)] = i
	}
	return nil
}

// Registry is the Schema Registry: the static mapping from class and method
// names to their metadata. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*ClassMeta
	methods map[string]*MethodMeta
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*ClassMeta),
		methods: make(map[string]*MethodMeta),
	}
}

// RegisterClass adds or replaces a class
func (r *Registry) RegisterClass(meta ClassMeta) error {
	meta.Props = append([]PropMeta(nil), meta.Props...)
	if err := meta.build(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[strings.ToLower(meta.Name)] = &meta
	return nil
}

// RegisterMethod adds or replaces a method
func (r *Registry) RegisterMethod(meta MethodMeta) error {
	meta.Params = append([]ParamMeta(nil), meta.Params...)
	if err := meta.build(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[strings.ToLower(meta.Name)] = &meta
	return nil
}

// Class looks up a class by name, case-insensitively
func (r *Registry) Class(name string) (*ClassMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[strings.ToLower(name)]
	return c, ok
}

// Method looks up a method by name, case-insensitively
func (r *Registry) Method(name string) (*MethodMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[strings.ToLower(name)]
	return m, ok
}

// Classes returns the canonical names of all registered classes, sorted
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

// LoadJSON registers the classes and methods described by a JSON schema document.
//
// The document format:
//
//	{
//	  "classes": [
//	    {"name": "lsServer", "rn": "ls-[name]", "io": "InputOutput",
//	     "access": ["admin", "ls-compute"], "minVersion": "1.0(1e)",
//	     "props": [{"name": "Name", "xml": "name", "access": "Naming"}]}
//	  ],
//	  "methods": [
//	    {"name": "configResolveDn",
//	     "params": [{"name": "dn", "type": "string", "input": true}]}
//	  ]
//	}
func (r *Registry) LoadJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("schema: invalid JSON document")
	}
	doc := gjson.ParseBytes(data)

	var loadErr error
	doc.Get("classes").ForEach(func(_, cls gjson.Result) bool {
		meta := ClassMeta{
			Name:    cls.Get("name").String(),
			XMLName: cls.Get("xml").String(),
			Rn:      cls.Get("rn").String(),
			IO:      IOType(cls.Get("io").String()),
		}
		for _, a := range cls.Get("access").Array() {
			meta.Access = append(meta.Access, a.String())
		}
		if v := cls.Get("minVersion").String(); v != "" {
			ver, err := ParseVersion(v)
			if err != nil {
				loadErr = fmt.Errorf("schema: class %s: %w", meta.Name, err)
				return false
			}
			meta.MinVersion = ver
		}
		var propErr error
		cls.Get("props").ForEach(func(_, p gjson.Result) bool {
			pm := PropMeta{
				Name:         p.Get("name").String(),
				XMLAttribute: p.Get("xml").String(),
				Access:       PropAccess(p.Get("access").String()),
			}
			if v := p.Get("minVersion").String(); v != "" {
				ver, err := ParseVersion(v)
				if err != nil {
					propErr = fmt.Errorf("schema: class %s property %s: %w", meta.Name, pm.Name, err)
					return false
				}
				pm.MinVersion = ver
			}
			meta.Props = append(meta.Props, pm)
			return true
		})
		if propErr != nil {
			loadErr = propErr
			return false
		}
		if err := r.RegisterClass(meta); err != nil {
			loadErr = fmt.Errorf("schema: %w", err)
			return false
		}
		return true
	})
	if loadErr != nil {
		return loadErr
	}

	doc.Get("methods").ForEach(func(_, m gjson.Result) bool {
		meta := MethodMeta{Name: m.Get("name").String()}
		m.Get("params").ForEach(func(_, p gjson.Result) bool {
			meta.Params = append(meta.Params, ParamMeta{
				Name:  p.Get("name").String(),
				Type:  ParamType(p.Get("type").String()),
				Input: p.Get("input").Bool(),
			})
			return true
		})
		if err := r.RegisterMethod(meta); err != nil {
			loadErr = fmt.Errorf("schema: %w", err)
			return false
		}
		return true
	})
	return loadErr
}

// Method names used by the core
const (
	MethodAaaLogin              = "aaaLogin"
	MethodAaaRefresh            = "aaaRefresh"
	MethodAaaLogout             = "aaaLogout"
	MethodConfigResolveDn       = "configResolveDn"
	MethodConfigResolveDns      = "configResolveDns"
	MethodConfigResolveClass    = "configResolveClass"
	MethodConfigResolveClasses  = "configResolveClasses"
	MethodConfigResolveChildren = "configResolveChildren"
	MethodConfigConfMo          = "configConfMo"
	MethodConfigConfMos         = "configConfMos"
	MethodEventSubscribe        = "eventSubscribe"
	MethodConfigMoChangeEvent   = "configMoChangeEvent"
	MethodMethodVessel          = "methodVessel"
)

func inParam(name string, t ParamType) ParamMeta  { return ParamMeta{Name: name, Type: t, Input: true} }
func outParam(name string, t ParamType) ParamMeta { return ParamMeta{Name: name, Type: t} }

func ro(name, xml string) PropMeta { return PropMeta{Name: name, XMLAttribute: xml, Access: AccessReadOnly} }
func rw(name, xml string) PropMeta { return PropMeta{Name: name, XMLAttribute: xml, Access: AccessReadWrite} }
func naming(name, xml string) PropMeta {
	return PropMeta{Name: name, XMLAttribute: xml, Access: AccessNaming}
}
func since(p PropMeta, v string) PropMeta {
	p.MinVersion = MustParseVersion(v)
	return p
}

var loginOutputs = []ParamMeta{
	outParam("outCookie", ParamString),
	outParam("outRefreshPeriod", ParamString),
	outParam("outPriv", ParamString),
	outParam("outDomains", ParamString),
	outParam("outChannel", ParamString),
	outParam("outEvtChannel", ParamString),
	outParam("outSessionId", ParamString),
	outParam("outVersion", ParamString),
}

var builtinMethods = []MethodMeta{
	{Name: MethodAaaLogin, Params: append([]ParamMeta{
		inParam("inName", ParamString), inParam("inPassword", ParamString),
	}, loginOutputs...)},
	{Name: MethodAaaRefresh, Params: append([]ParamMeta{
		inParam("inName", ParamString), inParam("inPassword", ParamString), inParam("inCookie", ParamString),
	}, loginOutputs...)},
	{Name: MethodAaaLogout, Params: []ParamMeta{
		inParam("inCookie", ParamString), outParam("outStatus", ParamString),
	}},
	{Name: MethodConfigResolveDn, Params: []ParamMeta{
		inParam("dn", ParamString), inParam("inHierarchical", ParamString),
		outParam("outConfig", ParamConfigConfig),
	}},
	{Name: MethodConfigResolveDns, Params: []ParamMeta{
		inParam("inHierarchical", ParamString), inParam("inDns", ParamDnSet),
		outParam("outConfigs", ParamConfigSet), outParam("outUnresolved", ParamDnSet),
	}},
	{Name: MethodConfigResolveClass, Params: []ParamMeta{
		inParam("classId", ParamString), inParam("inHierarchical", ParamString), inParam("inFilter", ParamFilter),
		outParam("outConfigs", ParamConfigSet),
	}},
	{Name: MethodConfigResolveClasses, Params: []ParamMeta{
		inParam("inHierarchical", ParamString), inParam("inIds", ParamClassIDSet),
		outParam("outConfigs", ParamConfigSet),
	}},
	{Name: MethodConfigResolveChildren, Params: []ParamMeta{
		inParam("classId", ParamString), inParam("inDn", ParamString), inParam("inHierarchical", ParamString),
		inParam("inFilter", ParamFilter),
		outParam("outConfigs", ParamConfigSet),
	}},
	{Name: MethodConfigConfMo, Params: []ParamMeta{
		inParam("dn", ParamString), inParam("inHierarchical", ParamString), inParam("inConfig", ParamConfigConfig),
		outParam("outConfig", ParamConfigConfig),
	}},
	{Name: MethodConfigConfMos, Params: []ParamMeta{
		inParam("inHierarchical", ParamString), inParam("inConfigs", ParamConfigMap),
		outParam("outConfigs", ParamConfigMap),
	}},
	{Name: MethodEventSubscribe, Params: []ParamMeta{
		inParam("inFilter", ParamFilter),
	}},
	{Name: MethodConfigMoChangeEvent, Params: []ParamMeta{
		inParam("inEid", ParamString), inParam("inConfig", ParamConfigConfig),
	}},
	{Name: MethodMethodVessel, Params: []ParamMeta{
		inParam("inStimuli", ParamMethodSet),
	}},
}

var builtinClasses = []ClassMeta{
	{Name: "topSystem", Rn: "sys", Access: []string{"admin"}, Props: []PropMeta{
		ro("Address", "address"), ro("CurrentTime", "currentTime"), ro("Mode", "mode"),
		rw("Name", "name"), rw("Owner", "owner"), rw("Site", "site"), ro("SystemUpTime", "systemUpTime"),
	}},
	{Name: "orgOrg", Rn: "org-[name]", Access: []string{"admin", "ls-config", "ls-server"}, Props: []PropMeta{
		naming("Name", "name"), rw("Descr", "descr"), ro("Level", "level"),
	}},
	{Name: "lsServer", Rn: "ls-[name]", Access: []string{"admin", "ls-compute", "ls-server"}, Props: []PropMeta{
		naming("Name", "name"),
		rw("Descr", "descr"),
		rw("UsrLbl", "usrLbl"),
		rw("Uuid", "uuid"),
		{Name: "Type", XMLAttribute: "type", Access: AccessCreateOnly},
		rw("BiosProfileName", "biosProfileName"),
		rw("BootPolicyName", "bootPolicyName"),
		rw("MgmtFwPolicyName", "mgmtFwPolicyName"),
		since(rw("PolicyOwner", "policyOwner"), "2.1(1a)"),
		since(rw("ExtIPState", "extIPState"), "2.2(1b)"),
		since(rw("PropAcl", "propAcl"), "3.1(1e)"),
		ro("AssocState", "assocState"),
		ro("ConfigState", "configState"),
		ro("OperState", "operState"),
	}},
	{Name: "vnicEther", Rn: "ether-[name]", Access: []string{"admin", "ls-network"}, Props: []PropMeta{
		naming("Name", "name"),
		rw("Addr", "addr"),
		rw("AdaptorProfileName", "adaptorProfileName"),
		rw("Mtu", "mtu"),
		rw("Order", "order"),
		rw("SwitchId", "switchId"),
		ro("OperState", "operState"),
	}},
	{Name: "fabricEp", Rn: "fabric", IO: IOOutputOnly, Access: []string{"read-only"}},
	{Name: "fabricLanCloud", Rn: "lan", Access: []string{"admin", "ext-lan-config"}, Props: []PropMeta{
		rw("MacAging", "macAging"), rw("Mode", "mode"),
	}},
	{Name: "fabricVlan", Rn: "net-[name]", Access: []string{"admin", "ext-lan-config"}, Props: []PropMeta{
		naming("Name", "name"),
		rw("Id", "id"),
		rw("Sharing", "sharing"),
		rw("DefaultNet", "defaultNet"),
		rw("McastPolicyName", "mcastPolicyName"),
		since(rw("PubNwName", "pubNwName"), "2.0(1m)"),
		ro("OperState", "operState"),
	}},
	{Name: "equipmentChassis", Rn: "chassis-[id]", Access: []string{"read-only"}, Props: []PropMeta{
		naming("Id", "id"),
		rw("AdminState", "adminState"),
		rw("UsrLbl", "usrLbl"),
		ro("Model", "model"),
		ro("Serial", "serial"),
		ro("OperState", "operState"),
	}},
	{Name: "computeBlade", Rn: "blade-[slotId]", IO: IOOutputOnly, Access: []string{"read-only"}, Props: []PropMeta{
		naming("SlotId", "slotId"),
		ro("ChassisId", "chassisId"),
		ro("Model", "model"),
		ro("Serial", "serial"),
		ro("Association", "association"),
		ro("OperState", "operState"),
		ro("Presence", "presence"),
		ro("NumOfCpus", "numOfCpus"),
		ro("TotalMemory", "totalMemory"),
		rw("AdminPower", "adminPower"),
	}},
	{Name: "firmwareRunning", Rn: "fw-[deployment]", IO: IOOutputOnly, Access: []string{"read-only"}, Props: []PropMeta{
		naming("Deployment", "deployment"),
		ro("Type", "type"),
		ro("Version", "version"),
		ro("PackageVersion", "packageVersion"),
	}},
	{Name: "aaaUser", Rn: "user-[name]", Access: []string{"aaa", "admin"}, Props: []PropMeta{
		naming("Name", "name"),
		rw("Descr", "descr"),
		rw("FirstName", "firstName"),
		rw("LastName", "lastName"),
		rw("Email", "email"),
		rw("Phone", "phone"),
		rw("Pwd", "pwd"),
		rw("AccountStatus", "accountStatus"),
		rw("Expiration", "expiration"),
	}},
}

// DefaultRegistry returns a registry holding the classes and methods the core
// operations need. Applications managing more classes extend it with
// RegisterClass or LoadJSON.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range builtinClasses {
		if err := r.RegisterClass(c); err != nil {
			panic(err)
		}
	}
	for _, m := range builtinMethods {
		if err := r.RegisterMethod(m); err != nil {
			panic(err)
		}
	}
	return r
}
