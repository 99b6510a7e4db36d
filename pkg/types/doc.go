// Package types defines the shared data model of the tiercache module: the
// cache entry and its metadata, per-tier and aggregate statistics, the
// event stream types, and the Tier interface implemented by the slow
// (network and storage backed) cache tiers.
//
// The package has no dependencies on the engine packages so that custom
// Tier implementations only need to import it.
package types
