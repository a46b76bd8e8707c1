// Package content maps typed domain content (tables, views, delta
// tables, namespaces) onto its stored byte form and back, across two
// storage generations. Current records embed their metadata location
// directly; legacy records resolve it lazily through an auxiliary
// global-state record.
package content
