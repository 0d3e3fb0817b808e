// Package rpc defines the per-modem request channel the capability manager
// talks through, plus SimChannel, an in-process implementation driven by a
// loop.Loop.
//
// A channel carries one request at a time in FIFO order. Each request has a
// timeout and a retry budget; completion is reported asynchronously through
// Request.Done with the transport status, the protocol error code and the
// raw response payload.
//
// Exclusive ownership ("blocking") lets one party keep every other request
// off the channel for the duration of a multi-step exchange. Acquire either
// grants ownership immediately or queues the claim behind the requests
// already waiting; an OwnerChanged notification fires when the owner
// changes. While a channel is owned, only requests tagged with the owner
// token are dispatched.
package rpc
