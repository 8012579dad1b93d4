package track

import (
	"github.com/golang/geo/s2"

	"runpost/internal/model"
)

// EarthRadiusMeters is Earth's mean radius.
const EarthRadiusMeters = 6371000.0

// HaversineDistance returns the great-circle distance in meters between two
// latitude/longitude pairs.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Aggregate walks consecutive sample pairs and derives total distance,
// elapsed time, average speed and cumulative elevation gain.
//
// Samples are taken in the order given, with no implicit sort. A pair with a
// non-positive time delta contributes no speed sample but its distance and
// elevation still accumulate; source logs contain noise and a single bad
// timestamp must not fail the whole track. Descents are ignored for gain.
// Zero or one sample yields zeroed metrics.
func Aggregate(samples []model.GeoSample) model.TrackMetrics {
	var m model.TrackMetrics
	if len(samples) == 0 {
		return m
	}

	m.StartTime = samples[0].Timestamp
	m.EndTime = samples[len(samples)-1].Timestamp

	var speeds []float64
	for i := 1; i < len(samples); i++ {
		prev, curr := samples[i-1], samples[i]

		dist := HaversineDistance(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude)
		m.DistanceMeters += dist

		// Only forward time steps count toward duration, so a clock jump
		// backwards can never drive it negative.
		dt := curr.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt > 0 {
			m.DurationSeconds += dt
			speeds = append(speeds, dist/dt*3.6)
		}

		if prev.Elevation != nil && curr.Elevation != nil {
			if gain := *curr.Elevation - *prev.Elevation; gain > 0 {
				m.ElevationGainMeters += gain
			}
		}
	}

	if len(speeds) > 0 {
		var sum float64
		for _, s := range speeds {
			sum += s
		}
		m.AverageSpeedKmh = sum / float64(len(speeds))
	}

	return m
}
