package aggregate

import (
	"errors"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/paulmach/orb"

	"github.com/emissions-api/worldmap/internal/hexgrid"
	"github.com/emissions-api/worldmap/internal/models"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	return New(&log.Logger{Handler: discard.New(), Level: log.InfoLevel})
}

func TestPrepare_AveragesSameCell(t *testing.T) {
	a := newTestAggregator(t)

	// Two points metres apart fall into the same resolution-4 cell.
	ds, err := a.Prepare([]models.Point{
		{Latitude: -36.794, Longitude: 146.977, Value: 10.0},
		{Latitude: -36.7941, Longitude: 146.9771, Value: 20.0},
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("len(ds) = %d, want 1", len(ds))
	}
	if ds[0].Value != 15.0 {
		t.Errorf("Value = %v, want 15.0", ds[0].Value)
	}
	if ds[0].Hex != hexgrid.CellFor(-36.794, 146.977) {
		t.Errorf("Hex = %q, want %q", ds[0].Hex, hexgrid.CellFor(-36.794, 146.977))
	}
	if len(ds[0].Boundary) == 0 {
		t.Error("Boundary is empty")
	}
}

func TestPrepare_DistinctCells(t *testing.T) {
	a := newTestAggregator(t)

	points := []models.Point{
		{Latitude: -36.794, Longitude: 146.977, Value: 1},
		{Latitude: 40.0, Longitude: 10.0, Value: 2},
		{Latitude: 40.0, Longitude: 10.001, Value: 3},
		{Latitude: 51.5, Longitude: -0.12, Value: 4},
	}

	want := make(map[string]bool)
	for _, p := range points {
		want[hexgrid.CellFor(p.Latitude, p.Longitude)] = true
	}

	ds, err := a.Prepare(points)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(ds) != len(want) {
		t.Fatalf("len(ds) = %d, want %d", len(ds), len(want))
	}
	seen := make(map[string]bool)
	for _, c := range ds {
		if seen[c.Hex] {
			t.Errorf("duplicate cell %q in dataset", c.Hex)
		}
		seen[c.Hex] = true
		if !want[c.Hex] {
			t.Errorf("unexpected cell %q in dataset", c.Hex)
		}
	}
}

func TestPrepare_OrderIndependent(t *testing.T) {
	a := newTestAggregator(t)

	points := []models.Point{
		{Latitude: -36.794, Longitude: 146.977, Value: 10},
		{Latitude: 40.0, Longitude: 10.0, Value: 2},
		{Latitude: -36.7941, Longitude: 146.9771, Value: 20},
		{Latitude: 51.5, Longitude: -0.12, Value: 4},
	}
	reversed := make([]models.Point, len(points))
	for i, p := range points {
		reversed[len(points)-1-i] = p
	}

	ds1, err := a.Prepare(points)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	ds2, err := a.Prepare(reversed)
	if err != nil {
		t.Fatalf("Prepare reversed: %v", err)
	}

	if len(ds1) != len(ds2) {
		t.Fatalf("len mismatch: %d vs %d", len(ds1), len(ds2))
	}
	for i := range ds1 {
		if ds1[i].Hex != ds2[i].Hex || ds1[i].Value != ds2[i].Value {
			t.Errorf("cell %d differs: (%q, %v) vs (%q, %v)",
				i, ds1[i].Hex, ds1[i].Value, ds2[i].Hex, ds2[i].Value)
		}
	}
}

func TestPrepare_InvalidPoint(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"latitude too high", 90.1, 0},
		{"latitude too low", -90.1, 0},
		{"longitude too high", 0, 180.1},
		{"longitude too low", 0, -180.1},
	}

	a := newTestAggregator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := a.Prepare([]models.Point{
				{Latitude: 0, Longitude: 0, Value: 1},
				{Latitude: tt.lat, Longitude: tt.lon, Value: 2},
			})
			var ipe *InvalidPointError
			if !errors.As(err, &ipe) {
				t.Fatalf("err = %v, want *InvalidPointError", err)
			}
			if ipe.Index != 1 {
				t.Errorf("Index = %d, want 1", ipe.Index)
			}
			if ds != nil {
				t.Errorf("ds = %v, want nil on validation failure", ds)
			}
		})
	}
}

func TestPrepare_ExcludesAntimeridianCells(t *testing.T) {
	a := newTestAggregator(t)

	// The cell containing (0, 179.9) straddles the antimeridian, so its
	// boundary longitudes jump between +179.x and -179.x.
	ds, err := a.Prepare([]models.Point{
		{Latitude: 0, Longitude: 179.9, Value: 1},
		{Latitude: 0, Longitude: 10, Value: 2},
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("len(ds) = %d, want 1 (antimeridian cell excluded)", len(ds))
	}
	if ds[0].Hex != hexgrid.CellFor(0, 10) {
		t.Errorf("surviving cell = %q, want the one at (0, 10)", ds[0].Hex)
	}
}

func TestPlottable(t *testing.T) {
	tests := []struct {
		name string
		ring orb.Ring
		want bool
	}{
		{
			name: "narrow cell is plottable",
			ring: orb.Ring{{10, 40}, {11, 41}, {12, 40}, {10, 40}},
			want: true,
		},
		{
			name: "antimeridian wrap is not",
			ring: orb.Ring{{-179, 0}, {179, 1}, {-179, 2}, {-179, 0}},
			want: false,
		},
		{
			name: "latitude span over 180 is not",
			ring: orb.Ring{{0, -95}, {10, 95}, {20, 0}, {0, -95}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plottable(tt.ring.Bound()); got != tt.want {
				t.Errorf("plottable = %v, want %v", got, tt.want)
			}
		})
	}
}
