// Package orchestrator implements the multi-agent task orchestration core:
// role-specialized agents, a capability-matched task assignment policy with
// dependency gating, an asynchronous inter-agent message log, and snapshot
// persistence of the whole population.
//
// The MultiAgentSystem is a single-process, synchronous coordinator. Every
// public operation runs to completion under one mutex; there is no internal
// suspension point and no cross-machine protocol. Public operations never
// panic and never propagate internal faults: they return ids, booleans, or
// empty collections and log what went wrong.
package orchestrator
