package models

import (
	"github.com/paulmach/orb"
)

// Point is a single emission measurement at a geographic location.
type Point struct {
	Latitude  float64
	Longitude float64
	Value     float64
}

// Cell is one aggregated hexagonal grid cell: the H3 index, the mean of all
// measurement values that fell into the cell, and the cell boundary ring in
// (longitude, latitude) vertex order.
type Cell struct {
	Hex      string
	Value    float64
	Boundary orb.Ring
}

// Dataset is a prepared collection of aggregated cells for one (product, day)
// window. Cell indices are unique within a dataset.
type Dataset []Cell

// Values returns the mean values of all cells, in dataset order.
func (d Dataset) Values() []float64 {
	vals := make([]float64, len(d))
	for i, c := range d {
		vals[i] = c.Value
	}
	return vals
}
