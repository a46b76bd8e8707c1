// Package natskv implements the Persist contract on NATS JetStream
// key-value buckets. Objects are stored as tagged envelopes keyed by
// their content-derived id, references as JSON records keyed by their
// encoded name, with KV revisions backing reference compare-and-set.
package natskv
