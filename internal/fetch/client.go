// Package fetch downloads measurement points from an Emissions API instance.
package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/emissions-api/worldmap/internal/httputil"
	"github.com/emissions-api/worldmap/internal/models"
)

const dayFormat = "2006-01-02"

type Client struct {
	baseURL string
	client  *http.Client
	log     log.Interface
}

func New(baseURL string, logger log.Interface) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httputil.NewClient(),
		log:     logger,
	}
}

// FetchDay requests all measurement points for the product with timestamps in
// [day, day+1) and decodes the GeoJSON feature collection into points.
func (c *Client) FetchDay(product string, day time.Time) ([]models.Point, error) {
	begin := day.Format(dayFormat)
	end := day.AddDate(0, 0, 1).Format(dayFormat)
	u := fmt.Sprintf("%s/api/v2/%s/geo.json?begin=%s&end=%s",
		c.baseURL, url.PathEscape(product), begin, end)

	c.log.WithField("product", product).WithField("day", begin).Info("downloading data from the emissions api")

	var body []byte
	operation := func() error {
		resp, err := c.client.Get(u)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch points: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("transient: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch points: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	points := make([]models.Point, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			c.log.WithField("type", f.Geometry.GeoJSONType()).Warn("skipping feature without point geometry")
			continue
		}
		points = append(points, models.Point{
			Latitude:  pt.Lat(),
			Longitude: pt.Lon(),
			Value:     f.Properties.MustFloat64("value", 0),
		})
	}
	return points, nil
}
