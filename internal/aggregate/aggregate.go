// Package aggregate turns raw measurement points into a deduplicated set of
// hexagonal cells with averaged values.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/apex/log"
	"github.com/paulmach/orb"

	"github.com/emissions-api/worldmap/internal/hexgrid"
	"github.com/emissions-api/worldmap/internal/models"
)

// InvalidPointError reports a measurement point with out-of-range coordinates.
type InvalidPointError struct {
	Index     int
	Latitude  float64
	Longitude float64
}

func (e *InvalidPointError) Error() string {
	return fmt.Sprintf("point %d: coordinates (%g, %g) out of range", e.Index, e.Latitude, e.Longitude)
}

type Aggregator struct {
	log log.Interface
}

func New(logger log.Interface) *Aggregator {
	return &Aggregator{log: logger}
}

// Prepare bins points into H3 cells, averages the values per cell, rebuilds
// each cell's boundary polygon and drops cells that cannot be drawn on a flat
// map. The whole batch is validated up front: any point with coordinates out
// of range fails the call with *InvalidPointError and no partial result.
func (a *Aggregator) Prepare(points []models.Point) (models.Dataset, error) {
	a.log.Info("preparing the data")

	for i, p := range points {
		if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
			return nil, &InvalidPointError{Index: i, Latitude: p.Latitude, Longitude: p.Longitude}
		}
	}

	a.log.Debug("generating h3 indices")
	type group struct {
		sum float64
		n   int
	}
	groups := make(map[string]*group)
	for _, p := range points {
		hex := hexgrid.CellFor(p.Latitude, p.Longitude)
		g := groups[hex]
		if g == nil {
			g = &group{}
			groups[hex] = g
		}
		g.sum += p.Value
		g.n++
	}

	// Sorted by index so permuted input produces an identical dataset.
	hexes := make([]string, 0, len(groups))
	for hex := range groups {
		hexes = append(hexes, hex)
	}
	sort.Strings(hexes)

	a.log.Debug("calculating hexagonal polygons")
	ds := make(models.Dataset, 0, len(hexes))
	for _, hex := range hexes {
		ring, err := hexgrid.Boundary(hex)
		if err != nil {
			return nil, fmt.Errorf("boundary for %s: %w", hex, err)
		}
		if !plottable(ring.Bound()) {
			a.log.WithField("hex", hex).Debug("dropping cell crossing the map border")
			continue
		}
		g := groups[hex]
		ds = append(ds, models.Cell{Hex: hex, Value: g.sum / float64(g.n), Boundary: ring})
	}
	return ds, nil
}

// plottable reports whether a boundary fits on a flat world map. Cells
// wrapping the antimeridian or a pole have bounding boxes spanning more than
// 180 degrees and would render as a band across the whole map.
func plottable(b orb.Bound) bool {
	return b.Max[0]-b.Min[0] <= 180 && b.Max[1]-b.Min[1] <= 180
}
