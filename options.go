// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package ucs

import (
	"net/http"
	"time"
)

// Client configuration options using the functional options pattern

// Username sets the login username
func Username(username string) func(*Client) {
	return func(c *Client) {
		c.username = username
	}
}

// Password sets the login password
func Password(password string) func(*Client) {
	return func(c *Client) {
		c.password = password
	}
}

// Port sets the endpoint port (default: 443 with TLS, 80 without)
func Port(port int) func(*Client) {
	return func(c *Client) {
		c.Port = port
	}
}

// TLS enables or disables HTTPS (default: true)
//
// WARNING: Disabling TLS sends credentials and cookies in clear text.
// Only use this in isolated testing environments.
func TLS(enabled bool) func(*Client) {
	return func(c *Client) {
		c.UseTLS = enabled
	}
}

// VerifyCertificate enables or disables TLS certificate verification (default: true)
//
// WARNING: with verification off, anyone on the path to the fabric
// interconnect can impersonate it and read the session cookie. Lab use only.
//
// Example:
//
//	client, _ := ucs.NewClient("10.0.0.10",
//	    ucs.Username("admin"),
//	    ucs.Password("secret"),
//	    ucs.VerifyCertificate(false))  // Insecure, use only for testing
func VerifyCertificate(verify bool) func(*Client) {
	return func(c *Client) {
		c.VerifyCertificate = verify
	}
}

// Proxy routes every request through the HTTP proxy at proxyURL
func Proxy(proxyURL string) func(*Client) {
	return func(c *Client) {
		c.ProxyURL = proxyURL
	}
}

// OperationTimeout sets the timeout of a single RPC (default: 60s)
func OperationTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.OperationTimeout = duration
	}
}

// AutoRefresh enables or disables the cookie refresh timer (default: true)
func AutoRefresh(enabled bool) func(*Client) {
	return func(c *Client) {
		c.AutoRefresh = enabled
	}
}

// AutoRelogin makes a failed automatic refresh fall back to a fresh login
func AutoRelogin(enabled bool) func(*Client) {
	return func(c *Client) {
		c.AutoRelogin = enabled
	}
}

// MaxRetries caps consecutive event stream reconnect attempts (default: 0, unlimited)
func MaxRetries(retries int) func(*Client) {
	return func(c *Client) {
		c.MaxRetries = retries
	}
}

// BackoffMinDelay sets the first event stream reconnect delay (default: 1s)
func BackoffMinDelay(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.BackoffMinDelay = duration
	}
}

// BackoffMaxDelay sets the largest event stream reconnect delay (default: 60s)
func BackoffMaxDelay(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.BackoffMaxDelay = duration
	}
}

// BackoffDelayFactor sets the reconnect delay multiplication factor (default: 2.0)
func BackoffDelayFactor(factor float64) func(*Client) {
	return func(c *Client) {
		c.BackoffDelayFactor = factor
	}
}

// WatchQueueSize sets the default capacity of watcher queues (default: 100)
func WatchQueueSize(size int) func(*Client) {
	return func(c *Client) {
		c.WatchQueueSize = size
	}
}

// MaxFilterComponents sets the largest number of children the query helpers
// put under one filter element (default: 25)
func MaxFilterComponents(max int) func(*Client) {
	return func(c *Client) {
		c.MaxFilterComponents = max
	}
}

// WithRegistry replaces the built-in schema registry
//
// Example:
//
//	reg := ucs.DefaultRegistry()
//	if err := reg.LoadJSON(classesJSON); err != nil {
//	    log.Fatal(err)
//	}
//	client, _ := ucs.NewClient("10.0.0.10", ucs.WithRegistry(reg))
func WithRegistry(reg *Registry) func(*Client) {
	return func(c *Client) {
		if reg != nil {
			c.registry = reg
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its redirect policy is overridden
// so that redirects are handled by the client itself.
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithSessionManager registers the client under name in m after every
// successful login; logout unregisters it.
//
// Example:
//
//	mgr := ucs.NewSessionManager()
//	defer mgr.Shutdown(context.Background())
//	client, _ := ucs.NewClient("10.0.0.10",
//	    ucs.Username("admin"),
//	    ucs.Password("secret"),
//	    ucs.WithSessionManager(mgr, "lab"))
func WithSessionManager(m *SessionManager, name string) func(*Client) {
	return func(c *Client) {
		c.manager = m
		c.managerName = name
	}
}

// WithLogger configures a custom logger for the client
//
// Without it nothing is logged (NoOpLogger). Pass a DefaultLogger, a
// ZapLogger or any other Logger implementation.
//
// Request and response documents logged at Debug level are redacted:
// inPassword, cookie, outCookie, inCookie and pwd values never reach the log.
//
// Example (DefaultLogger):
//
//	logger := ucs.NewDefaultLogger(ucs.LogLevelInfo)
//	client, _ := ucs.NewClient("10.0.0.10",
//	    ucs.Username("admin"),
//	    ucs.Password("secret"),
//	    ucs.WithLogger(logger))
//
// Example (zap):
//
//	zl, _ := zap.NewProduction()
//	client, _ := ucs.NewClient("10.0.0.10", ucs.WithLogger(ucs.NewZapLogger(zl)))
func WithLogger(logger Logger) func(*Client) {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrettyPrintLogs enables/disables XML indentation in debug logs
//
// Default: disabled (false)
func WithPrettyPrintLogs(enabled bool) func(*Client) {
	return func(c *Client) {
		c.prettyPrintLogs = enabled
	}
}

// Request modifiers for individual operations

// Timeout returns a request modifier that sets a custom timeout for the operation.
//
// The timeout priority model is:
//  1. Request-specific timeout (this modifier) - highest priority
//  2. Context deadline (if already set) - medium priority
//  3. Client.OperationTimeout - fallback default
//
// Example:
//
//	mos, err := client.ConfigResolveClass(ctx, "computeBlade", nil,
//	    ucs.Timeout(2*time.Minute))
func Timeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.Timeout = duration
	}
}

// Hierarchical returns a request modifier that asks resolve operations for
// the full subtree of each object.
func Hierarchical(enabled bool) func(*Req) {
	return func(req *Req) {
		req.Hierarchical = enabled
	}
}
