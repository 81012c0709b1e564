// Package types provides shared type definitions for the AgentCore runtime:
// agent roles, capability sets, and structured errors used across the
// orchestrator and memory subsystems.
package types
