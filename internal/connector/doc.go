// Package connector defines the contract graphsql consumes from a graph
// database client, and provides a client for the local query proxy.
//
// A Connector executes an ordered batch of native commands together with
// positional input blobs and returns one result object per command plus
// positional output blobs. Each result object has the shape
// {Verb: {status, ...}}; Response.Status is zero only when every command
// succeeded.
//
// The translation layer never retries. A Connector implementation may retry a
// page fetch internally because every page request is independent.
package connector
