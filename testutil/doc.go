// Package testutil provides shared test helpers: a JetStream-enabled
// NATS container fixture and generators for store objects and
// references.
package testutil
