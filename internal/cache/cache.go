// Package cache provides best-effort persistence of prepared datasets keyed
// by (product, day).
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/emissions-api/worldmap/internal/models"
)

const dayFormat = "2006-01-02"

// Cache persists prepared datasets. Load returns (nil, nil) when no entry
// exists; an unreadable entry is indistinguishable from an absent one.
// Save overwrites any existing entry for the same key.
type Cache interface {
	Load(product string, day time.Time) (models.Dataset, error)
	Save(ds models.Dataset, product string, day time.Time) error
}

// Filename returns the cache entry name for a (product, day) window.
func Filename(product string, day time.Time) string {
	return fmt.Sprintf("cache-%s-%s", product, day.Format(dayFormat))
}

// FileCache stores one GeoJSON feature collection per (product, day) in a
// directory.
type FileCache struct {
	dir string
	log log.Interface
}

func NewFileCache(dir string, logger log.Interface) *FileCache {
	return &FileCache{dir: dir, log: logger}
}

func (c *FileCache) path(product string, day time.Time) string {
	return filepath.Join(c.dir, Filename(product, day))
}

func (c *FileCache) Load(product string, day time.Time) (models.Dataset, error) {
	fn := c.path(product, day)
	data, err := os.ReadFile(fn)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.WithError(err).WithField("file", fn).Debug("cache read failed, treating as miss")
		}
		return nil, nil
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		c.log.WithError(err).WithField("file", fn).Debug("cache entry unreadable, treating as miss")
		return nil, nil
	}

	ds, ok := fromFeatures(fc)
	if !ok {
		c.log.WithField("file", fn).Debug("cache entry malformed, treating as miss")
		return nil, nil
	}

	c.log.WithField("file", fn).Debug("loaded data from cache")
	return ds, nil
}

func (c *FileCache) Save(ds models.Dataset, product string, day time.Time) error {
	fn := c.path(product, day)
	c.log.WithField("file", fn).Debug("saving data to cache")

	data, err := json.Marshal(toFeatureCollection(ds))
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return os.WriteFile(fn, data, 0o644)
}

func toFeatureCollection(ds models.Dataset) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, cell := range ds {
		f := geojson.NewFeature(orb.Polygon{cell.Boundary})
		f.Properties["hex"] = cell.Hex
		f.Properties["value"] = cell.Value
		fc.Append(f)
	}
	return fc
}

func fromFeatures(fc *geojson.FeatureCollection) (models.Dataset, bool) {
	ds := make(models.Dataset, 0, len(fc.Features))
	for _, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			return nil, false
		}
		hex, ok := f.Properties["hex"].(string)
		if !ok {
			return nil, false
		}
		value, ok := f.Properties["value"].(float64)
		if !ok {
			return nil, false
		}
		ds = append(ds, models.Cell{Hex: hex, Value: value, Boundary: poly[0]})
	}
	return ds, true
}
