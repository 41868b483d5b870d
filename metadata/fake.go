package metadata

import "context"

// Fake is a static Provider used by tests and single-box demos.
type Fake struct {
	WorkerIDValue       string
	RegionValue         string
	PublicEndpointValue string
}

var _ Provider = (*Fake)(nil)

func (f *Fake) WorkerID(context.Context) (string, error)       { return f.WorkerIDValue, nil }
func (f *Fake) Region(context.Context) (string, error)         { return f.RegionValue, nil }
func (f *Fake) PublicEndpoint(context.Context) (string, error) { return f.PublicEndpointValue, nil }
