// Package statestore provides pluggable key-value persistence backends
// for serialized system state. Two implementations are included: a
// JSON-file store for single-node deployments and a Redis store for
// shared or remote state.
package statestore
