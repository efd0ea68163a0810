package fetcher

import (
	"context"

	"ais-diff-events/internal/vessel"
)

// VesselFetcher retrieves the vessel list for a port over a bounded
// epoch-second time window from the AIS feed.
type VesselFetcher interface {
	FetchVessels(ctx context.Context, portCode string, fromS, toS int64) ([]vessel.Record, error)
}
