// Package navigate turns record coordinates into external map links and
// answers distance questions between records.
package navigate

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/bastiangx/cityserve/pkg/location"
	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used to turn angles into distances.
const EarthRadiusKm = 6371.0088

const googleMapsBase = "https://www.google.com/maps/search/"

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GoogleMapsURL returns a Google Maps search link centred on c.
func GoogleMapsURL(c location.Coordinates) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("query", formatDeg(c.Lat)+","+formatDeg(c.Lon))
	return googleMapsBase + "?" + q.Encode()
}

// GeoURI returns an RFC 5870 geo: URI for c, labelled with the record name
// when one is given.
func GeoURI(c location.Coordinates, label string) string {
	u := fmt.Sprintf("geo:%s,%s", formatDeg(c.Lat), formatDeg(c.Lon))
	if label != "" {
		u += "?q=" + url.QueryEscape(formatDeg(c.Lat)+","+formatDeg(c.Lon)+"("+label+")")
	}
	return u
}

// Valid reports whether c is a usable latitude/longitude pair.
func Valid(c location.Coordinates) bool {
	return s2.LatLngFromDegrees(c.Lat, c.Lon).IsValid()
}

// DistanceKm is the great-circle distance between a and b.
func DistanceKm(a, b location.Coordinates) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lon)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return la.Distance(lb).Radians() * EarthRadiusKm
}

// Neighbour is a record paired with its distance from the query point.
type Neighbour struct {
	Record     location.Record
	DistanceKm float64
}

// Nearest returns up to n records closest to from, nearest first. The record
// whose id equals skipID is left out; pass a negative skipID to keep every
// record. Other records on the same coordinates are kept at distance zero.
// Records with invalid coordinates are skipped.
func Nearest(records []location.Record, from location.Coordinates, n int, skipID int64) []Neighbour {
	if n <= 0 || len(records) == 0 {
		return nil
	}

	origin := s2.LatLngFromDegrees(from.Lat, from.Lon)
	out := make([]Neighbour, 0, len(records))
	for _, r := range records {
		if skipID >= 0 && r.ID == skipID {
			continue
		}
		ll := s2.LatLngFromDegrees(r.Coord.Lat, r.Coord.Lon)
		if !ll.IsValid() {
			continue
		}
		out = append(out, Neighbour{Record: r, DistanceKm: origin.Distance(ll).Radians() * EarthRadiusKm})
	}

	slices.SortStableFunc(out, func(a, b Neighbour) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}
		return 0
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
