// Package cache provides the data model and contracts for a query result cache.
//
// # Overview
//
// The package exports the pieces every other layer agrees on:
//
//   - Signature and Codec: the structural identity of a read query
//   - Entry and Status: the last known state of one signature
//   - Store: the owner of all entries, with per signature subscriptions
//   - ErrorInfo and Classify: the serializable failure taxonomy
//   - DehydratedState: the snapshot a server render ships to a client
//
// The store implementation lives in internal/cacheinfra and the read,
// hydration and invalidation protocol in the querysync package.
//
// # Signatures
//
// A signature is derived from a query name and its params:
//
//	sig := cache.SignatureOf("getUserByUsername", map[string]any{"username": "ada"})
//	sig.Key() // getUserByUsername::{"username":"ada"}
//
// Params are normalized through JSON, so maps and structs that are deep-equal
// produce the same signature whatever their field order. A nil params value
// and an empty object are the same signature. Values JSON cannot encode
// (functions, channels) fall back to a reflection walk; such signatures work
// as local keys but are not Portable and are never dehydrated.
//
// # Entries
//
// Entries move through idle, loading, success and error. A success entry
// always has data; an error entry keeps the last known good data, if any,
// next to its ErrorInfo.
//
// # Failure Taxonomy
//
// Classify maps errors built with github.com/goliatone/go-errors (or ozzo
// validation errors) to one of VALIDATION, NOT_FOUND, TRANSIENT, UNAUTHORIZED
// or UNKNOWN. Stores and readers never return these as Go errors; failures
// are kept in error entries.
//
// # Wire Formats
//
// DehydratedState encodes as JSON for embedding in a page and as msgpack for
// binary transports:
//
//	data, err := cache.MarshalState(state, cache.FormatMsgpack)
package cache
