// Package gpx loads track-log samples from GPX files.
package gpx

import (
	"fmt"
	"sort"

	"github.com/tkrajina/gpxgo/gpx"

	"runpost/internal/model"
)

// Samples parses the GPX file at path and returns its trackpoints sorted by
// timestamp ascending. Points without a timestamp carry no matching value and
// are skipped. Duplicate timestamps keep their first-seen order.
func Samples(path string) ([]model.GeoSample, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse gpx %s: %w", path, err)
	}

	var samples []model.GeoSample
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				if p.Timestamp.IsZero() {
					continue
				}
				s := model.GeoSample{
					Latitude:  p.Latitude,
					Longitude: p.Longitude,
					Timestamp: p.Timestamp,
				}
				if p.Elevation.NotNull() {
					e := p.Elevation.Value()
					s.Elevation = &e
				}
				samples = append(samples, s)
			}
		}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}
