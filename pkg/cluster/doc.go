// Package cluster tracks group membership and derives the leader.
//
// This package handles:
//   - View tracking (ordered member list, self excluded for peers)
//   - Leader derivation through a pluggable LeaderStrategy
//   - View change notification to dependent components
package cluster
