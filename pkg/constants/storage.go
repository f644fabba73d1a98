// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

const (
	// KVBucketNameRosterSnapshots is the name of the KV bucket for roster snapshots.
	KVBucketNameRosterSnapshots = "roster-snapshots"

	// KVSnapshotKeyPrefix is the key pattern for per-account snapshots
	KVSnapshotKeyPrefix = "snapshot/%s"
)

// Environment variables
const (
	// EnvNATSURL is the environment variable for NATS server URL
	EnvNATSURL = "NATS_URL"
	// EnvNATSCredentials is the environment variable for NATS credentials
	EnvNATSCredentials = "NATS_CREDENTIALS"
)
