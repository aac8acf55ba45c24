// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy provides the HTTP handler that bridges browser clients with a
// remote MCP server. Requests under the configured route prefix are rewritten
// onto the server's /mcp path, authenticated with a bearer credential chosen
// by the auth resolver, and relayed back after the response body has been
// buffered. A credential negotiated through token exchange is handed back to
// the browser in the X-MCP-Access-Token cookie so later calls reuse it.
package proxy
