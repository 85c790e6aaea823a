// Package models pkg/models/snapshot.go
package models

import "time"

// Snapshot is one immutable, versioned copy of the pump status.
// Seq increases monotonically; only one snapshot is current at a time.
type Snapshot struct {
	Status    PumpStatus `json:"status"`
	Seq       uint64     `json:"seq"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Signals carries the poller-derived conditions that accompany a
// snapshot into alarm evaluation.
type Signals struct {
	// ConnectivityLost is set after the configured number of
	// consecutive fetch failures and cleared on the next success.
	ConnectivityLost bool

	// DataStale is set when the last successful fetch is older than
	// the staleness threshold.
	DataStale bool

	// HaveData is false until the first successful fetch.
	HaveData bool
}
