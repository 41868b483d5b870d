// Package compute defines the ComputeProvider capability (spec.md §6,
// §9): peer discovery for leader election plus the four fleet-scaling
// operations. Only a region-scoped in-memory fake is shipped in this
// pack — no retrieved example repo exercises a live cloud
// DescribeInstances-shaped client, so a production EC2/Azure-VMSS-backed
// implementation is sketched in DESIGN.md rather than wired (see the
// heartbeat/reclaim entry of DESIGN.md).
package compute

import "context"

// Instance describes one live fleet worker as seen by the control plane.
type Instance struct {
	WorkerID string
	Region   string
	State    string
}

// Provider is the capability injected into the reclaimer (F) for leader
// election and into the operator console for fleet scaling.
type Provider interface {
	// ListLive returns the identities of all live workers in region,
	// used by the reclaimer's deterministic leader election (spec.md
	// §4.3: "sorts them, and proceeds only if it is first").
	ListLive(ctx context.Context, region string) ([]Instance, error)

	// Launch starts n new worker instances in region.
	Launch(ctx context.Context, region string, n int) error

	// SetDesiredCount adjusts the target fleet size in region.
	SetDesiredCount(ctx context.Context, region string, n int) error

	// Terminate stops the named worker instances.
	Terminate(ctx context.Context, workerIDs []string) error
}
