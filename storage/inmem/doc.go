// Package inmem provides the in-memory backing store. It is the
// reference Persist implementation and the substrate for tests that do
// not want a real backend.
package inmem
