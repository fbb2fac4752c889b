// Package hexgrid wraps the H3 grid system at the fixed resolution used by
// the Emissions API.
package hexgrid

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/uber/h3-go/v4"
)

// Resolution is the H3 resolution of the Emissions API points.
const Resolution = 4

// CellFor returns the H3 index of the cell containing the given coordinates.
func CellFor(lat, lon float64) string {
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), Resolution)
	return cell.String()
}

// Boundary returns the boundary ring of a cell in (longitude, latitude)
// vertex order. H3 reports vertices as (lat, lng); only the coordinate order
// within each vertex is swapped, the vertex sequence is preserved. The ring
// is closed.
func Boundary(hex string) (orb.Ring, error) {
	cell := h3.Cell(h3.IndexFromString(hex))
	if !cell.IsValid() {
		return nil, fmt.Errorf("invalid h3 index %q", hex)
	}
	boundary := h3.CellToBoundary(cell)
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, v := range boundary {
		ring = append(ring, orb.Point{v.Lng, v.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring, nil
}
