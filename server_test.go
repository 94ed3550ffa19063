// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeUCS is an in-memory management endpoint. It authenticates admin /
// password, keeps a flat object store keyed by dn and serves the event
// stream from the events channel.
type fakeUCS struct {
	t       *testing.T
	srv     *httptest.Server
	reg     *Registry
	factory *Factory

	mu       sync.Mutex
	store    map[string]*ManagedObject
	calls    map[string]int
	requests []string
	session  int
	cookie   string

	// version is returned as outVersion; empty omits it
	version     string
	refreshFail bool
	logoutFail  bool

	// resolveHook, when set, answers configResolveDn
	resolveHook func(dn string) *ManagedObject

	// beforeReply, when set, runs after a request was handled and before
	// its reply is written
	beforeReply func(method string)

	// events carries XML documents written as frames to eventSubscribe
	events chan string
	quit   chan struct{}
}

func newFakeUCS(t *testing.T) *fakeUCS {
	t.Helper()
	reg := DefaultRegistry()
	f := &fakeUCS{
		t:       t,
		reg:     reg,
		factory: NewFactory(reg),
		store:   make(map[string]*ManagedObject),
		calls:   make(map[string]int),
		version: "2.2(1b)",
		events:  make(chan string, 16),
		quit:    make(chan struct{}),
	}
	f.srv = httptest.NewServer(f)
	t.Cleanup(func() {
		close(f.quit)
		f.srv.Close()
	})
	f.put(NewManagedObject(reg, "firmwareRunning").
		SetDn("sys/mgmt/fw-system").
		Set("Deployment", "system").
		Set("Version", "3.1(3a)"))
	return f
}

// newClient returns a plaintext client pointed at the fake server
func (f *fakeUCS) newClient(opts ...func(*Client)) *Client {
	f.t.Helper()
	u, err := url.Parse(f.srv.URL)
	require.NoError(f.t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(f.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(f.t, err)

	base := []func(*Client){
		TLS(false),
		Port(port),
		Username("admin"),
		Password("password"),
		AutoRefresh(false),
	}
	c, err := NewClient(host, append(base, opts...)...)
	require.NoError(f.t, err)
	return c
}

func (f *fakeUCS) put(mo *ManagedObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := mo.Clone()
	cp.MarkClean()
	f.store[mo.Dn()] = cp
}

func (f *fakeUCS) get(dn string) *ManagedObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mo, ok := f.store[dn]; ok {
		return mo.Clone()
	}
	return nil
}

func (f *fakeUCS) objects(classID string) []*ManagedObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ManagedObject
	for _, mo := range f.store {
		if strings.EqualFold(mo.ClassID(), classID) {
			out = append(out, mo.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dn() < out[j].Dn() })
	return out
}

func (f *fakeUCS) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeUCS) lastRequest(method string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if strings.HasPrefix(f.requests[i], "<"+method) {
			return f.requests[i]
		}
	}
	return ""
}

// requestsFor returns every request body of method in arrival order
func (f *fakeUCS) requestsFor(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.requests {
		if strings.HasPrefix(r, "<"+method) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeUCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := ParseNodeString(string(body))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, ok := f.factory.Load(n, nil).(*ExternalMethod)
	if !ok {
		http.Error(w, "unknown method "+n.Name, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls[req.Name()]++
	f.requests = append(f.requests, string(body))
	f.mu.Unlock()

	if req.Name() == MethodEventSubscribe {
		f.stream(w, r)
		return
	}

	resp := f.handle(req)
	if f.beforeReply != nil {
		f.beforeReply(req.Name())
	}
	out, err := MarshalElement(resp, WriteAll)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = io.WriteString(w, out)
}

func (f *fakeUCS) stream(w http.ResponseWriter, r *http.Request) {
	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-f.quit:
			return
		case doc, ok := <-f.events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "%d\n%s", len(doc), doc); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (f *fakeUCS) handle(req *ExternalMethod) *ExternalMethod {
	resp := NewExternalMethod(f.reg, req.Name())
	resp.Response = true
	fail := func(code int, descr string) *ExternalMethod {
		resp.ErrorCode = code
		resp.ErrorDescr = descr
		return resp
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Name() {
	case MethodAaaLogin:
		if req.Param("inName") != "admin" || req.Param("inPassword") != "password" {
			return fail(551, "Authentication failed")
		}
		f.newSessionLocked(resp)
		return resp
	case MethodAaaRefresh:
		if f.refreshFail || req.Param("inCookie") != f.cookie {
			return fail(552, "Authorization required")
		}
		f.newSessionLocked(resp)
		return resp
	case MethodAaaLogout:
		if f.logoutFail {
			return fail(555, "Session not found")
		}
		f.cookie = ""
		resp.SetParam("outStatus", "success")
		return resp
	}

	if req.Cookie == "" || req.Cookie != f.cookie {
		return fail(552, "Authorization required")
	}
	resp.Cookie = req.Cookie

	switch req.Name() {
	case MethodConfigResolveDn:
		dn := req.Param("dn")
		var mo *ManagedObject
		if f.resolveHook != nil {
			mo = f.resolveHook(dn)
		} else if stored, ok := f.store[dn]; ok {
			mo = stored.Clone()
		}
		resp.SetElement("outConfig", &ConfigConfig{MO: mo})
	case MethodConfigResolveDns:
		set, _ := req.Element("inDns").(*ElementSet)
		found := NewConfigSet()
		unresolved := NewDnSet()
		if set != nil {
			for _, dn := range set.Values() {
				if mo, ok := f.store[dn]; ok {
					found.Items = append(found.Items, mo.Clone())
				} else {
					unresolved.Items = append(unresolved.Items, NewDn(dn))
				}
			}
		}
		resp.SetElement("outConfigs", found).SetElement("outUnresolved", unresolved)
	case MethodConfigResolveClass, MethodConfigResolveChildren:
		filter, _ := req.Element("inFilter").(*Filter)
		class := req.Param("classId")
		parent := req.Param("inDn")
		set := NewConfigSet()
		for _, dn := range f.sortedDnsLocked() {
			mo := f.store[dn]
			if class != "" && !strings.EqualFold(mo.ClassID(), class) {
				continue
			}
			if req.Name() == MethodConfigResolveChildren && ParentDn(dn) != parent {
				continue
			}
			if filter != nil && !filter.Match(mo) {
				continue
			}
			set.Items = append(set.Items, mo.Clone())
		}
		resp.SetElement("outConfigs", set)
	case MethodConfigResolveClasses:
		ids, _ := req.Element("inIds").(*ElementSet)
		want := make(map[string]bool)
		if ids != nil {
			for _, id := range ids.Values() {
				want[strings.ToLower(id)] = true
			}
		}
		set := NewConfigSet()
		for _, dn := range f.sortedDnsLocked() {
			if mo := f.store[dn]; want[strings.ToLower(mo.ClassID())] {
				set.Items = append(set.Items, mo.Clone())
			}
		}
		resp.SetElement("outConfigs", set)
	case MethodConfigConfMo:
		cc, _ := req.Element("inConfig").(*ConfigConfig)
		if cc == nil || cc.MO == nil {
			return fail(103, "missing inConfig")
		}
		if f.classConflictLocked(cc.MO) {
			return fail(103, "object of another class exists at "+cc.MO.Dn())
		}
		resp.SetElement("outConfig", &ConfigConfig{MO: f.applyLocked(cc.MO)})
	case MethodConfigConfMos:
		cm, _ := req.Element("inConfigs").(*ConfigMap)
		out := NewConfigMap()
		if cm != nil {
			for _, p := range cm.Pairs() {
				if f.classConflictLocked(p.MO) {
					return fail(103, "object of another class exists at "+p.MO.Dn())
				}
				if mo := f.applyLocked(p.MO); mo != nil {
					out.Put(p.Key, mo)
				}
			}
		}
		resp.SetElement("outConfigs", out)
	default:
		return fail(1, "unsupported method "+req.Name())
	}
	return resp
}

func (f *fakeUCS) newSessionLocked(resp *ExternalMethod) {
	f.session++
	f.cookie = fmt.Sprintf("cookie-%d", f.session)
	resp.SetParam("outCookie", f.cookie).
		SetParam("outRefreshPeriod", "600").
		SetParam("outPriv", "admin,read-only").
		SetParam("outDomains", "org-root").
		SetParam("outSessionId", fmt.Sprintf("web_%d", f.session))
	if f.version != "" {
		resp.SetParam("outVersion", f.version)
	}
}

func (f *fakeUCS) sortedDnsLocked() []string {
	dns := make([]string, 0, len(f.store))
	for dn := range f.store {
		dns = append(dns, dn)
	}
	sort.Strings(dns)
	return dns
}

// classConflictLocked reports whether mo would modify an object of another
// class stored at its dn
func (f *fakeUCS) classConflictLocked(mo *ManagedObject) bool {
	if mo == nil || mo.IsDeleted() {
		return false
	}
	stored, ok := f.store[mo.Dn()]
	return ok && !strings.EqualFold(stored.ClassID(), mo.ClassID())
}

// applyLocked stores a mutation and returns the resulting object
func (f *fakeUCS) applyLocked(mo *ManagedObject) *ManagedObject {
	if mo == nil || mo.Dn() == "" {
		return nil
	}
	dn := mo.Dn()
	if strings.Contains(mo.Status(), StatusDeleted) {
		gone := f.store[dn]
		for k := range f.store {
			if k == dn || strings.HasPrefix(k, dn+"/") {
				delete(f.store, k)
			}
		}
		if gone == nil {
			gone = mo.Clone()
		}
		return gone
	}
	stored, ok := f.store[dn]
	if !ok {
		stored = NewManagedObject(f.reg, mo.ClassID()).SetDn(dn)
	}
	for name, v := range mo.Props() {
		if name == PropStatus || name == PropRn {
			continue
		}
		stored.Set(name, v)
	}
	stored.MarkClean()
	f.store[dn] = stored
	for _, ch := range mo.Children() {
		f.applyLocked(ch)
	}
	return stored.Clone()
}

// changeEventDoc renders a configMoChangeEvent frame body
func changeEventDoc(t *testing.T, reg *Registry, eid string, mo *ManagedObject) string {
	t.Helper()
	m := NewExternalMethod(reg, MethodConfigMoChangeEvent).
		SetParam("inEid", eid).
		SetElement("inConfig", &ConfigConfig{MO: mo})
	doc, err := MarshalElement(m, WriteAll)
	require.NoError(t, err)
	return doc
}
