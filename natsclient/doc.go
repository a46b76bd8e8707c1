// Package natsclient provides a managed NATS connection with JetStream
// access, key-value bucket lifecycle helpers, and a KVStore wrapper
// with revision-based compare-and-set and sentinel error mapping.
package natsclient
