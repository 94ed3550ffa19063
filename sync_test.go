// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncServer seeds two service profiles and returns a logged in client.
// The fake reports server version 2.2(1b).
func syncServer(t *testing.T) (*fakeUCS, *Client) {
	t.Helper()
	f := newFakeUCS(t)
	f.put(profile(f.reg, "org-root/ls-a", "old").Set("UsrLbl", "lbl").Set("OperState", "ok"))
	f.put(profile(f.reg, "org-root/ls-b", "b"))
	c := f.newClient()
	require.NoError(t, c.Login(context.Background()))
	return f, c
}

func desiredProfiles(reg *Registry) []*ManagedObject {
	return []*ManagedObject{
		profile(reg, "org-root/ls-a", "new"),
		profile(reg, "org-root/ls-c", "c").
			Set("PropAcl", "1").
			Set("OperState", "ok"),
	}
}

func compareWithServer(t *testing.T, c *Client, desired []*ManagedObject) []*MoDiff {
	t.Helper()
	ref, err := c.ConfigResolveClass(context.Background(), "lsServer", nil)
	require.NoError(t, err)
	diffs, err := CompareManagedObject(c.Registry(), ref, desired, CompareVersion(c.Version()))
	require.NoError(t, err)
	return diffs
}

func TestSyncManagedObject(t *testing.T) {
	f, c := syncServer(t)
	ctx := context.Background()
	desired := desiredProfiles(c.Registry())

	diffs := compareWithServer(t, c, desired)
	require.Equal(t, []string{
		"=> org-root/ls-a [Descr]",
		"<= org-root/ls-b",
		"=> org-root/ls-c",
	}, diffSummary(diffs))

	mos, err := c.SyncManagedObject(ctx, diffs)
	require.NoError(t, err)
	assert.Len(t, mos, 2, "removals are skipped without DeleteNotPresent")
	assert.Equal(t, 1, f.callCount(MethodConfigConfMos))

	req := f.lastRequest(MethodConfigConfMos)
	assert.Contains(t, req, `status="modified"`)
	assert.Contains(t, req, `status="created,modified"`)
	assert.NotContains(t, req, `propAcl=`, "properties newer than the server are dropped")
	assert.NotContains(t, req, `operState=`, "operational properties are never sent")
	assert.NotContains(t, req, `usrLbl=`, "unchanged properties of a modify are not sent")

	assert.Equal(t, "new", f.get("org-root/ls-a").Get("Descr"))
	assert.Equal(t, "lbl", f.get("org-root/ls-a").Get("UsrLbl"))
	assert.NotNil(t, f.get("org-root/ls-c"))
	assert.NotNil(t, f.get("org-root/ls-b"))

	_, err = c.SyncManagedObject(ctx, compareWithServer(t, c, desired), DeleteNotPresent())
	require.NoError(t, err)
	assert.Nil(t, f.get("org-root/ls-b"))
	assert.Contains(t, f.lastRequest(MethodConfigConfMos), `status="deleted"`)

	assert.Empty(t, compareWithServer(t, c, desired), "a synced server matches the candidate")
}

func TestSyncNoVersionFilter(t *testing.T) {
	f, c := syncServer(t)
	diffs, err := CompareManagedObject(c.Registry(), nil, desiredProfiles(c.Registry())[1:])
	require.NoError(t, err)

	_, err = c.SyncManagedObject(context.Background(), diffs, SyncNoVersionFilter())
	require.NoError(t, err)
	assert.Contains(t, f.lastRequest(MethodConfigConfMos), `propAcl="1"`)
}

func TestSyncPolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   SyncPolicy
		opts     []func(*SyncOptions)
		want     []string
		notWant  []string
		status   string
		wantSent bool
	}{
		{
			name:     "ignore",
			policy:   SyncPolicy{Class: "lsServer", Ignore: true, Reason: "managed elsewhere"},
			opts:     []func(*SyncOptions){DeleteNotPresent()},
			wantSent: false,
		},
		{
			name:     "exclude",
			policy:   SyncPolicy{Class: "lsServer", Exclude: []string{"descr"}},
			wantSent: true,
			want:     []string{`name="c"`},
			notWant:  []string{`descr=`},
		},
		{
			name:     "status override",
			policy:   SyncPolicy{Class: "lsServer", Status: StatusCreatedModified},
			wantSent: true,
			status:   StatusCreatedModified,
		},
		{
			name:     "policy for another version",
			policy:   SyncPolicy{Class: "lsServer", MinVersion: MustParseVersion("3.0(1c)"), Ignore: true},
			wantSent: true,
			want:     []string{`descr="new"`},
			status:   StatusModified,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := syncServer(t)
			diffs := compareWithServer(t, c, desiredProfiles(c.Registry()))
			opts := append([]func(*SyncOptions){WithPolicyTable(NewPolicyTable(tt.policy))}, tt.opts...)

			mos, err := c.SyncManagedObject(context.Background(), diffs, opts...)
			require.NoError(t, err)
			if !tt.wantSent {
				assert.Nil(t, mos)
				assert.Equal(t, 0, f.callCount(MethodConfigConfMos))
				assert.NotNil(t, f.get("org-root/ls-b"))
				return
			}
			req := f.lastRequest(MethodConfigConfMos)
			for _, s := range tt.want {
				assert.Contains(t, req, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, req, s)
			}
			if tt.status != "" {
				assert.Equal(t, tt.status, sentObject(t, f, "org-root/ls-a").Status())
			}
		})
	}
}

// classChangeDiffs compares the seeded lsServer at org-root/ls-b with an
// orgOrg at the same dn
func classChangeDiffs(t *testing.T, f *fakeUCS, c *Client) ([]*MoDiff, []*ManagedObject) {
	t.Helper()
	desired := []*ManagedObject{NewManagedObject(c.Registry(), "orgOrg").SetDn("org-root/ls-b").Set("Name", "b")}
	diffs, err := CompareManagedObject(c.Registry(), []*ManagedObject{f.get("org-root/ls-b")}, desired)
	require.NoError(t, err)
	require.Equal(t, []string{"<= org-root/ls-b", "=> org-root/ls-b"}, diffSummary(diffs))
	return diffs, desired
}

func TestSyncClassChange(t *testing.T) {
	f, c := syncServer(t)
	ctx := context.Background()
	diffs, desired := classChangeDiffs(t, f, c)

	_, err := c.SyncManagedObject(ctx, diffs, DeleteNotPresent())
	require.NoError(t, err)

	reqs := f.requestsFor(MethodConfigConfMos)
	require.Len(t, reqs, 2, "the delete goes out before the create")
	assert.Contains(t, reqs[0], `status="deleted"`)
	assert.NotContains(t, reqs[0], `created`)
	assert.Contains(t, reqs[1], `status="created,modified"`)
	assert.NotContains(t, reqs[1], `deleted`)

	require.NotNil(t, f.get("org-root/ls-b"))
	assert.Equal(t, "orgOrg", f.get("org-root/ls-b").ClassID())

	again, err := CompareManagedObject(c.Registry(), []*ManagedObject{f.get("org-root/ls-b")}, desired)
	require.NoError(t, err)
	assert.Empty(t, again, "a synced server matches the candidate")
}

func TestSyncClassChangeWithoutDelete(t *testing.T) {
	f, c := syncServer(t)
	diffs, _ := classChangeDiffs(t, f, c)

	_, err := c.SyncManagedObject(context.Background(), diffs)
	_, ok := IsProtocolError(err)
	assert.True(t, ok, "the server refuses a create over another class")
	reqs := f.requestsFor(MethodConfigConfMos)
	require.Len(t, reqs, 1)
	assert.NotContains(t, reqs[0], `status="deleted"`)
}

func TestSyncClassChangeInTransaction(t *testing.T) {
	f, c := syncServer(t)
	ctx := context.Background()
	diffs, _ := classChangeDiffs(t, f, c)

	require.NoError(t, c.StartTransaction())
	_, err := c.SyncManagedObject(ctx, diffs, DeleteNotPresent())
	require.NoError(t, err)
	assert.Equal(t, 0, f.callCount(MethodConfigConfMos))

	_, err = c.CompleteTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount(MethodConfigConfMos))

	req := f.lastRequest(MethodConfigConfMos)
	del := strings.Index(req, `status="deleted"`)
	create := strings.Index(req, `status="created,modified"`)
	require.NotEqual(t, -1, del)
	require.NotEqual(t, -1, create)
	assert.Less(t, del, create)
	assert.Equal(t, "orgOrg", f.get("org-root/ls-b").ClassID())
}

func TestSyncNothingToSend(t *testing.T) {
	f, c := syncServer(t)
	reg := c.Registry()

	mos, err := c.SyncManagedObject(context.Background(), []*MoDiff{
		nil,
		{Dn: "org-root/ls-a", InputObject: profile(reg, "org-root/ls-a", "old"), SideIndicator: SideEqual},
		{Dn: "org-root/ls-b", InputObject: profile(reg, "org-root/ls-b", "b"), SideIndicator: SideRemove},
	})
	assert.NoError(t, err)
	assert.Nil(t, mos)
	assert.Equal(t, 0, f.callCount(MethodConfigConfMos))
}

// sentObject returns the object last sent for dn in a configConfMos request
func sentObject(t *testing.T, f *fakeUCS, dn string) *ManagedObject {
	t.Helper()
	n, err := ParseNodeString(f.lastRequest(MethodConfigConfMos))
	require.NoError(t, err)
	m, ok := f.factory.Load(n, nil).(*ExternalMethod)
	require.True(t, ok)
	cm, ok := m.Element("inConfigs").(*ConfigMap)
	require.True(t, ok)
	for _, p := range cm.Pairs() {
		if p.Key == dn {
			return p.MO
		}
	}
	t.Fatalf("%s not sent", dn)
	return nil
}
