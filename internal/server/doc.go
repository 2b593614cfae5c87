// Package server exposes the mask tools over MCP (Model Context Protocol).
//
// The server speaks JSON-RPC 2.0 over stdio, one request per line on stdin
// and one response per line on stdout. Log output goes to stderr.
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Encoding:
//   - rle_encode: Encode a mask file as a run-length string
//   - rle_decode: Decode a run-length string into a mask (PNG preview or file)
//   - submission_encode: Merge scored instance masks into submission lines
//   - submission_read: Parse a submission file back into records
//
// Tiling:
//   - image_dimensions: Width and height of an image
//   - tile_plan: Enumerate tile boxes without touching the disk
//   - partition: Tile an image and its masks into a section-per-tile dataset
//
// # Defaults
//
// Optional arguments (size, overlap, format, workers, out) fall back to the
// configuration the server was created with.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and the Go error string in data. Malformed arguments give -32602.
package server
