// Package location holds the immutable record type that every other package indexes, groups and publishes.
package location

// Coordinates is a longitude/latitude pair in degrees.
type Coordinates struct {
	Lon float64 `json:"lon" msgpack:"lon"`
	Lat float64 `json:"lat" msgpack:"lat"`
}

// Record is a single named place. Records are passed by value and never mutated
// once the dataset is loaded.
type Record struct {
	ID      int64
	Name    string
	Country string
	Coord   Coordinates
}

// DisplayName is the "name, country" key the prefix index searches on.
func (r Record) DisplayName() string {
	return r.Name + ", " + r.Country
}
