// Package server implements the HTTP and WebSocket transport for pairchat.
//
// Each connection is a Client that acts as the relay.Sink for its user: the
// read pump decodes inbound frames and hands them to the relay, and the write
// pump drains the client's queue onto the socket. Configuration, origin
// checks, rate limiting and routing live in their own files.
package server
