// Package mcp exposes plan generation and the saved-plan directory as MCP
// tools over stdio.
//
// Tools are registered with the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and call the planner and directory services directly. Every call acts on
// behalf of the single account configured at startup; an empty account is
// anonymous.
package mcp
