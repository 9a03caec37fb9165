// Package audit persists the append-only transition trail and exports it
// for the reporting collaborator.
//
// Every stage, tier, and circuit change commits one TransitionRecord.
// Records are never mutated or deleted; the trail is the authoritative
// answer to "why is this policy in this state". Exporters stream records
// as JSON or CSV so compliance documentation can be generated without
// loading the whole trail into memory.
package audit
