// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"strings"
)

// StartTransaction opens a transaction on the session.
//
// Until CompleteTransaction or UndoTransaction, configConfMo and
// configConfMos calls are collected in a buffer keyed by DN instead of being
// sent. Starting a second transaction is a *ValidationError.
//
// Example:
//
//	if err := client.StartTransaction(); err != nil {
//	    log.Fatal(err)
//	}
//	_, _ = client.AddManagedObject(ctx, vlanA)
//	_, _ = client.AddManagedObject(ctx, vlanB)
//	mos, err := client.CompleteTransaction(ctx) // one configConfMos
func (c *Client) StartTransaction() error {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	if c.txInProgress {
		return &ValidationError{
			Operation: "StartTransaction",
			Message:   "a transaction is already open",
			Err:       ErrTransactionInProgress,
		}
	}
	c.txInProgress = true
	c.txBuffer = NewConfigMap()
	c.logger.Debug(context.Background(), "UCS transaction started", "host", c.Host)
	return nil
}

// InTransaction reports whether a transaction is open
func (c *Client) InTransaction() bool {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	return c.txInProgress
}

// UndoTransaction discards the open transaction without sending anything
func (c *Client) UndoTransaction() error {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	if !c.txInProgress {
		return &ValidationError{Operation: "UndoTransaction", Message: "no transaction is open", Err: ErrNoTransaction}
	}
	dropped := c.txBuffer.Len()
	c.txInProgress = false
	c.txBuffer = nil
	c.logger.Debug(context.Background(), "UCS transaction discarded", "host", c.Host, "objects", dropped)
	return nil
}

// CompleteTransaction closes the open transaction and sends the buffered
// objects as one configConfMos carrying only dirty properties.
//
// The buffer is reset whatever the outcome. An empty transaction sends
// nothing and returns no objects.
func (c *Client) CompleteTransaction(ctx context.Context, mods ...func(*Req)) ([]*ManagedObject, error) {
	c.txMu.Lock()
	if !c.txInProgress {
		c.txMu.Unlock()
		return nil, &ValidationError{Operation: "CompleteTransaction", Message: "no transaction is open", Err: ErrNoTransaction}
	}
	buf := c.txBuffer
	c.txInProgress = false
	c.txBuffer = nil
	c.txMu.Unlock()

	if buf.Len() == 0 {
		return nil, nil
	}

	c.logger.Debug(ctx, "UCS transaction commit", "host", c.Host, "objects", buf.Len())
	m := NewExternalMethod(c.registry, MethodConfigConfMos).
		SetParam("inHierarchical", "false").
		SetElement("inConfigs", buf)
	resp, err := c.Dispatch(ctx, m, WriteDirty, mods...)
	if err != nil {
		return nil, err
	}
	return flattenManagedObjects(resp.Element("outConfigs")), nil
}

// interceptTransaction buffers config mutations while a transaction is open
// and builds the echo response. ok is false when m must be sent.
func (c *Client) interceptTransaction(m *ExternalMethod) (*ExternalMethod, bool) {
	if m.Name() != MethodConfigConfMo && m.Name() != MethodConfigConfMos {
		return nil, false
	}
	c.txMu.Lock()
	defer c.txMu.Unlock()
	if !c.txInProgress {
		return nil, false
	}

	resp := NewExternalMethod(c.registry, m.Name())
	resp.Response = true
	resp.Cookie = m.Cookie

	switch m.Name() {
	case MethodConfigConfMo:
		cc, _ := m.Element("inConfig").(*ConfigConfig)
		if cc == nil || cc.MO == nil {
			break
		}
		key := m.Param("dn")
		if key == "" {
			key = cc.MO.Dn()
		}
		c.bufferObject(key, cc.MO)
		resp.SetElement("outConfig", &ConfigConfig{MO: c.echo(cc.MO)})
	case MethodConfigConfMos:
		cm, _ := m.Element("inConfigs").(*ConfigMap)
		out := NewConfigMap()
		if cm != nil {
			for _, p := range cm.Pairs() {
				if p.MO == nil {
					continue
				}
				c.bufferObject(p.Key, p.MO)
				out.Put(p.Key, c.echo(p.MO))
			}
		}
		resp.SetElement("outConfigs", out)
	}
	return resp, true
}

// bufferObject adds a copy of mo under key. A second mutation of the same
// DN is merged into the first: its dirty properties overwrite, its children
// are appended. A mutation of another class, or one following a delete, is
// kept as its own pair after the first.
// PRECONDITION: caller holds c.txMu.
func (c *Client) bufferObject(key string, mo *ManagedObject) {
	cp := mo.Clone()
	existing, ok := c.txBuffer.Get(key)
	if !ok {
		c.txBuffer.Put(key, cp)
		return
	}
	if !strings.EqualFold(existing.ClassID(), cp.ClassID()) || existing.IsDeleted() != cp.IsDeleted() {
		c.txBuffer.Append(key, cp)
		return
	}
	for _, name := range cp.Dirty() {
		v, _ := cp.Lookup(name)
		existing.Set(name, v)
	}
	for _, ch := range cp.children {
		existing.AddChild(ch)
	}
}

func (c *Client) echo(mo *ManagedObject) *ManagedObject {
	e := mo.Clone()
	e.MarkClean()
	e.bindTree(c)
	return e
}
