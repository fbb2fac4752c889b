// Package render draws a prepared dataset as a choropleth world map and
// writes it to a PNG file.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"

	"github.com/apex/log"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/carto"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/emissions-api/worldmap/internal/models"
)

// Options is the flat set of styling knobs for a rendered map.
type Options struct {
	PixelsX     int
	PixelsY     int
	DPI         int
	Colormap    string
	Title       string
	LegendTitle string
	FontSize    float64
	Legend      bool
	VMin        *float64
	VMax        *float64
	// Basemap is an optional path to a GeoJSON file with world boundaries
	// to overlay on top of the cells.
	Basemap string
}

type Renderer struct {
	log log.Interface
}

func New(logger log.Interface) *Renderer {
	return &Renderer{log: logger}
}

// Render draws the dataset over a [-180, 180] x [-90, 90] plate carrée canvas
// and writes the result to output.
func (r *Renderer) Render(ds models.Dataset, output string, opts Options) error {
	r.log.Info("starting to plot")

	width := vg.Length(float64(opts.PixelsX)/float64(opts.DPI)) * vg.Inch
	height := vg.Length(float64(opts.PixelsY)/float64(opts.DPI)) * vg.Inch

	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(opts.DPI))
	dc := vgdraw.New(img)

	var legendc vgdraw.Canvas
	if opts.Legend {
		legendHeight := height / 10
		legendc = vgdraw.Crop(dc, 0, 0, 0, legendHeight-dc.Max.Y+dc.Min.Y)
		dc = vgdraw.Crop(dc, 0, 0, legendHeight, 0)
	}

	cmap, err := colormap(opts.Colormap)
	if err != nil {
		return err
	}

	m := carto.NewCanvas(90, -90, 180, -180, dc)

	if len(ds) > 0 {
		values := ds.Values()
		if opts.VMin != nil {
			values = append(values, *opts.VMin)
		}
		if opts.VMax != nil {
			values = append(values, *opts.VMax)
		}
		cmap.AddArray(values)
		cmap.Set()

		r.log.Info("plotting hexagonal polygons")
		lineStyle := vgdraw.LineStyle{Width: 0.1 * vg.Millimeter}
		for _, cell := range ds {
			c := cmap.GetColor(clamp(cell.Value, opts.VMin, opts.VMax))
			lineStyle.Color = c
			m.DrawVector(ringToGeom(cell.Boundary), c, lineStyle, vgdraw.GlyphStyle{})
		}
	} else {
		r.log.Warn("dataset is empty, plotting basemap only")
	}

	if opts.Basemap != "" {
		r.log.Info("plotting country borders")
		if err := r.drawBasemap(m, opts.Basemap); err != nil {
			return err
		}
	}

	if opts.Legend && len(ds) > 0 {
		cmap.Legend(&legendc, opts.LegendTitle)
	}

	var buf bytes.Buffer
	pngc := vgimg.PngCanvas{Canvas: img}
	if _, err := pngc.WriteTo(&buf); err != nil {
		return fmt.Errorf("encode canvas: %w", err)
	}

	final, err := overlayTitle(&buf, opts)
	if err != nil {
		return err
	}

	r.log.Infof("saving output to %s", output)
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, final); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return f.Close()
}

func colormap(name string) (*carto.ColorMap, error) {
	switch name {
	case "", "linear":
		return carto.NewColorMap(carto.Linear), nil
	case "lincutoff":
		return carto.NewColorMap(carto.LinCutoff), nil
	}
	return nil, fmt.Errorf("unknown colormap %q", name)
}

func clamp(v float64, vmin, vmax *float64) float64 {
	if vmin != nil && v < *vmin {
		v = *vmin
	}
	if vmax != nil && v > *vmax {
		v = *vmax
	}
	return v
}

func (r *Renderer) drawBasemap(m *carto.Canvas, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read basemap: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("unmarshal basemap: %w", err)
	}

	border := vgdraw.LineStyle{Width: 0.25 * vg.Millimeter, Color: color.Black}
	for _, f := range fc.Features {
		for _, g := range borderGeoms(f.Geometry) {
			m.DrawVector(g, color.NRGBA{}, border, vgdraw.GlyphStyle{})
		}
	}
	return nil
}

func borderGeoms(g orb.Geometry) []geom.Geom {
	switch g := g.(type) {
	case orb.Polygon:
		return []geom.Geom{polygonToGeom(g)}
	case orb.MultiPolygon:
		out := make([]geom.Geom, 0, len(g))
		for _, p := range g {
			out = append(out, polygonToGeom(p))
		}
		return out
	case orb.LineString:
		return []geom.Geom{lineToGeom(g)}
	case orb.MultiLineString:
		out := make([]geom.Geom, 0, len(g))
		for _, l := range g {
			out = append(out, lineToGeom(l))
		}
		return out
	}
	return nil
}

func ringToGeom(r orb.Ring) geom.Polygon {
	ring := make([]geom.Point, len(r))
	for i, p := range r {
		ring[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return geom.Polygon{ring}
}

func polygonToGeom(p orb.Polygon) geom.Polygon {
	poly := make(geom.Polygon, len(p))
	for i, ring := range p {
		poly[i] = make([]geom.Point, len(ring))
		for j, pt := range ring {
			poly[i][j] = geom.Point{X: pt[0], Y: pt[1]}
		}
	}
	return poly
}

func lineToGeom(l orb.LineString) geom.LineString {
	line := make(geom.LineString, len(l))
	for i, p := range l {
		line[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return line
}

// overlayTitle decodes the rendered canvas and draws the title centered near
// the top edge.
func overlayTitle(r io.Reader, opts Options) (image.Image, error) {
	src, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode canvas: %w", err)
	}
	if opts.Title == "" {
		return src, nil
	}

	rgba := image.NewRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, image.Point{}, draw.Src)

	fnt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    opts.FontSize,
		DPI:     float64(opts.DPI),
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	adv := d.MeasureString(opts.Title)
	lineHeight := face.Metrics().Height
	d.Dot = fixed.Point26_6{
		X: (fixed.I(rgba.Bounds().Dx()) - adv) / 2,
		Y: lineHeight + lineHeight/2,
	}
	d.DrawString(opts.Title)
	return rgba, nil
}
