// Package device holds the sub-devices reported by a gateway.
//
// A Device is created from a discovery record and lives as long as the
// discovery result set that produced it. Its online flag and property values
// are updated from inbound gateway frames, so every accessor is safe for
// concurrent use.
//
// The Registry is the in-memory index of the current result set. A new
// discovery replaces it wholesale.
//
// SQLiteRepository stores Snapshots of a result set so the CLI and HTTP API
// can list devices without a broker round trip.
package device
