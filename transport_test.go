// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientFor returns a plaintext client pointed at srv
func clientFor(t *testing.T, srv *httptest.Server, opts ...func(*Client)) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	base := []func(*Client){TLS(false), Port(port), Username("admin"), Password("password"), AutoRefresh(false)}
	c, err := NewClient(host, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestDispatchValidation(t *testing.T) {
	f := newFakeUCS(t)
	c := f.newClient()
	ctx := context.Background()

	_, err := c.Dispatch(ctx, nil, WriteAll)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	m := NewExternalMethod(c.Registry(), MethodConfigResolveDn).SetParam("dn", "sys")
	_, err = c.Dispatch(ctx, m, WriteOption(42))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MethodConfigResolveDn, verr.Operation)

	_, err = c.DispatchRaw(ctx, "  ")
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, 0, f.callCount(MethodConfigResolveDn))
}

func TestDispatchTransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantIs     error
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "this is not xml")
			},
			wantIs: ErrMalformedResponse,
		},
		{
			name: "truncated document",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `<configResolveDn response="yes"><outConfig>`)
			},
			wantIs: ErrMalformedResponse,
		},
		{
			name: "non-numeric error code",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `<configResolveDn response="yes" errorCode="E12" errorDescr="bad"/>`)
			},
			wantIs: ErrMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := clientFor(t, srv)

			m := NewExternalMethod(c.Registry(), MethodConfigResolveDn).SetParam("dn", "sys")
			resp, err := c.Dispatch(context.Background(), m, WriteAll)
			assert.Nil(t, resp)

			var terr *TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, MethodConfigResolveDn, terr.Operation)
			assert.Equal(t, tt.wantStatus, terr.StatusCode)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestDispatchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := clientFor(t, srv)
	srv.Close()

	m := NewExternalMethod(c.Registry(), MethodConfigResolveDn).SetParam("dn", "sys")
	_, err := c.Dispatch(context.Background(), m, WriteAll)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)

	// the HTTP stack's error is exposed unchanged
	var uerr *url.Error
	assert.True(t, errors.As(err, &uerr))
	assert.Same(t, terr.Err, uerr)
}

func TestDispatchProtocolErrorKeepsReply(t *testing.T) {
	f := newFakeUCS(t)
	c := f.newClient()

	m := NewExternalMethod(c.Registry(), MethodConfigResolveDn).SetParam("dn", "sys")
	resp, err := c.Dispatch(context.Background(), m, WriteAll)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 552, resp.ErrorCode)

	perr, ok := IsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, "Authorization required", perr.Description)
}

func TestDispatchFollowsOneRedirect(t *testing.T) {
	f := newFakeUCS(t)
	var hits atomic.Int32
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, f.srv.URL+"/nuova", http.StatusFound)
	}))
	defer front.Close()

	c := clientFor(t, front)
	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "cookie-1", c.Cookie())
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, f.callCount(MethodAaaLogin))
}

func TestDispatchRedirectLoopNotFollowed(t *testing.T) {
	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, srv.URL+"/nuova", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	c := clientFor(t, srv)
	err := c.Login(context.Background())

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusMovedPermanently, terr.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDispatchRaw(t *testing.T) {
	f := newFakeUCS(t)
	c := f.newClient()
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	reply, err := c.DispatchRaw(ctx,
		`<configResolveDn cookie="`+c.Cookie()+`" dn="sys/mgmt/fw-system" inHierarchical="false"/>`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "<configResolveDn"))
	assert.Contains(t, reply, `version="3.1(3a)"`)
}

func TestDispatchBindsAndCleansReply(t *testing.T) {
	f := newFakeUCS(t)
	c := f.newClient()
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))

	mo, err := c.ConfigResolveDn(ctx, "sys/mgmt/fw-system")
	require.NoError(t, err)
	require.NotNil(t, mo)
	assert.Empty(t, mo.Dirty())
	assert.Same(t, c, mo.Session())
}

func TestCreateRequestContext(t *testing.T) {
	c, err := NewClient("10.0.0.10", OperationTimeout(30*time.Second))
	require.NoError(t, err)

	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		timeout time.Duration
		want    time.Duration
	}{
		{
			name:    "request timeout wins",
			ctx:     func() (context.Context, context.CancelFunc) { return context.WithTimeout(context.Background(), time.Hour) },
			timeout: 5 * time.Second,
			want:    5 * time.Second,
		},
		{
			name: "context deadline kept",
			ctx:  func() (context.Context, context.CancelFunc) { return context.WithTimeout(context.Background(), 10*time.Second) },
			want: 10 * time.Second,
		},
		{
			name: "operation timeout fallback",
			ctx:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			want: 30 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, cancelParent := tt.ctx()
			defer cancelParent()
			ctx, cancel := c.createRequestContext(parent, &Req{Timeout: tt.timeout})
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.InDelta(t, tt.want.Seconds(), time.Until(deadline).Seconds(), 1)
		})
	}
}

func TestCheckContextCancellation(t *testing.T) {
	assert.NoError(t, checkContextCancellation(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, checkContextCancellation(ctx), context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	assert.ErrorIs(t, checkContextCancellation(ctx), context.DeadlineExceeded)
}
