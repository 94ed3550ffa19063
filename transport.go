// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMalformedResponse is wrapped by the TransportError returned for a reply
// body that is not a well-formed XML document.
var ErrMalformedResponse = errors.New("malformed response")

// Dispatch sends method and returns the server's reply envelope.
//
// While a transaction is open, configConfMo and configConfMos are not sent:
// the inputs are appended to the transaction buffer and an echo response of
// clean clones is returned. Every other call is serialized with opt, posted
// to URI() and parsed back through the class factory; objects in the reply
// are marked clean and bound to the client.
//
// A reply with a non-zero errorCode returns both the reply and a
// *ProtocolError. HTTP failures return a *TransportError wrapping the HTTP
// stack's error unchanged. Nothing is retried.
//
// Example:
//
//	m := ucs.NewExternalMethod(client.Registry(), ucs.MethodConfigResolveClass).
//	    SetParam("classId", "lsServer").
//	    SetParam("inHierarchical", "false")
//	resp, err := client.Dispatch(ctx, m, ucs.WriteAll)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	servers := resp.Element("outConfigs").(*ucs.ElementSet).ManagedObjects()
func (c *Client) Dispatch(ctx context.Context, m *ExternalMethod, opt WriteOption, mods ...func(*Req)) (*ExternalMethod, error) {
	if m == nil {
		return nil, newValidationError("Dispatch", "method cannot be nil")
	}
	if err := ValidateWriteOption(opt); err != nil {
		return nil, &ValidationError{Operation: m.Name(), Message: err.Error()}
	}
	if err := checkContextCancellation(ctx); err != nil {
		return nil, &TransportError{Operation: m.Name(), Err: err}
	}

	if resp, ok := c.interceptTransaction(m); ok {
		c.logger.Debug(ctx, "UCS request buffered in transaction", "method", m.Name())
		return resp, nil
	}

	if m.Cookie == "" && m.Name() != MethodAaaLogin {
		m.Cookie = c.Cookie()
	}

	body, err := MarshalElement(m, opt)
	if err != nil {
		return nil, fmt.Errorf("ucs: %s: serialize request: %w", m.Name(), err)
	}

	raw, err := c.exchange(ctx, m.Name(), body, mods)
	if err != nil {
		return nil, err
	}

	n, err := ParseNodeString(raw)
	if err != nil {
		return nil, &TransportError{Operation: m.Name(), Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	resp := NewExternalMethod(c.registry, m.Name())
	resp.loadXML(n, &loader{factory: c.factory, client: c})
	if resp.loadErr != nil {
		return nil, &TransportError{Operation: m.Name(), Err: fmt.Errorf("%w: %v", ErrMalformedResponse, resp.loadErr)}
	}
	resp.Response = true
	settleResponse(resp, c)

	if err := resp.Err(); err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) {
			c.logger.Debug(ctx, "UCS protocol error", "detail", perr.DetailedError())
		}
		return resp, err
	}
	return resp, nil
}

// settleResponse marks every object carried by a reply clean and binds it
// to the client.
func settleResponse(resp *ExternalMethod, c *Client) {
	for _, el := range resp.elements {
		for _, mo := range flattenManagedObjects(el) {
			mo.MarkClean()
			mo.bindTree(c)
		}
	}
}

// DispatchRaw posts an XML document and returns the reply body unparsed.
//
// Example:
//
//	reply, err := client.DispatchRaw(ctx,
//	    `<configResolveDn cookie="`+client.Cookie()+`" dn="sys" inHierarchical="false"/>`)
func (c *Client) DispatchRaw(ctx context.Context, doc string, mods ...func(*Req)) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", newValidationError("DispatchRaw", "request document cannot be empty")
	}
	if err := checkContextCancellation(ctx); err != nil {
		return "", &TransportError{Operation: "DispatchRaw", Err: err}
	}
	return c.exchange(ctx, "DispatchRaw", doc, mods)
}

// exchange performs one HTTP round trip and follows at most one redirect
// when TLS is off.
func (c *Client) exchange(ctx context.Context, op, body string, mods []func(*Req)) (string, error) {
	req := &Req{}
	for _, mod := range mods {
		mod(req)
	}
	ctx, cancel := c.createRequestContext(ctx, req)
	defer cancel()

	target := c.URI()
	c.logger.Debug(ctx, "UCS request",
		"method", op,
		"uri", target,
		"body", c.prepareXMLForLogging(body))

	start := time.Now()
	reply, status, location, err := c.post(ctx, target, body)
	if err == nil && isRedirect(status) && !c.UseTLS && location != "" {
		next, rerr := resolveLocation(target, location)
		if rerr != nil {
			return "", &TransportError{Operation: op, StatusCode: status, Err: rerr}
		}
		c.logger.Info(ctx, "UCS redirect", "method", op, "from", target, "to", next)
		reply, status, _, err = c.post(ctx, next, body)
	}
	if err != nil {
		c.logger.Error(ctx, "UCS request failed", "method", op, "error", err.Error())
		return "", &TransportError{Operation: op, Err: err}
	}
	if status != http.StatusOK {
		c.logger.Error(ctx, "UCS request failed", "method", op, "status", status)
		return "", &TransportError{
			Operation:  op,
			StatusCode: status,
			Err:        fmt.Errorf("unexpected HTTP status %d", status),
		}
	}

	c.logger.Debug(ctx, "UCS response",
		"method", op,
		"duration_ms", time.Since(start).Milliseconds(),
		"body", c.prepareXMLForLogging(reply))
	return reply, nil
}

func (c *Client) post(ctx context.Context, target, body string) (string, int, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(body))
	if err != nil {
		return "", 0, "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, "", err
	}
	return string(data), resp.StatusCode, resp.Header.Get("Location"), nil
}

func isRedirect(status int) bool {
	return status == http.StatusMovedPermanently || status == http.StatusFound
}

func resolveLocation(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect location %q: %w", location, err)
	}
	return b.ResolveReference(l).String(), nil
}

// createRequestContext applies the timeout of one exchange.
//
// Timeout priority model:
//  1. Request-specific timeout (req.Timeout > 0)
//  2. Existing context deadline
//  3. Client.OperationTimeout
func (c *Client) createRequestContext(ctx context.Context, req *Req) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		if req.Timeout < time.Second {
			c.logger.Warn(ctx, "request timeout is very short (may not complete)",
				"timeout", req.Timeout.String(),
				"host", c.Host)
		}
		return context.WithTimeout(ctx, req.Timeout)
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.OperationTimeout)
}

// checkContextCancellation checks if context is canceled or deadline exceeded
// without blocking.
func checkContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
