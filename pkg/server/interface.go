/*
Package server implements msgpack IPC for the city search pipeline.

The server speaks a stream of msgpack maps over stdin/stdout. Requests carry
an id and an op; replies to a request echo the id. Besides replies the server
pushes two kinds of unsolicited messages: every published search state, and
every one-shot event.

# IPC

Update the query text. The search runs once the debounce window passes and
arrives as a state message:

	{"id": "q1", "op": "query", "q": "alb"}

	{"k": "state", "ph": "ready", "q": "alb", "n": 1,
	 "g": [{"h": "A", "r": [{"id": 5454711, "n": "Albuquerque", "cc": "US", "lon": -106.65, "lat": 35.08}]}]}

Open a city. The reply is an ack; the map link comes as an event:

	{"id": "s1", "op": "select", "rid": 5454711}

	{"k": "event", "ev": "open_location", "url": "https://www.google.com/maps/search/?api=1&query=35.08%2C-106.65", ...}

Other ops:

	{"id": "k1", "op": "keys", "q": "sy", "l": 5}    distinct display names under a prefix
	{"id": "n1", "op": "near", "rid": 2147714, "l": 3} closest cities to a record
	{"id": "st", "op": "state"}                        current state, tagged with the id
	{"id": "ld", "op": "load"}                         retry a failed dataset load

Failures answer with {"k": "error", "id": ..., "e": "...", "code": 400}.
Codes follow HTTP: 400 bad request, 404 unknown record, 503 index not ready.
*/
package server

// Message kinds carried in the "k" field.
const (
	KindState = "state"
	KindEvent = "event"
	KindKeys  = "keys"
	KindNear  = "near"
	KindAck   = "ack"
	KindError = "error"
)

// Request is any client message. Fields not used by an op are ignored.
type Request struct {
	ID       string `msgpack:"id"`
	Op       string `msgpack:"op"`
	Query    string `msgpack:"q,omitempty"`
	RecordID int64  `msgpack:"rid,omitempty"`
	Limit    int    `msgpack:"l,omitempty"`
}

// CityMessage is one record on the wire.
type CityMessage struct {
	ID      int64   `msgpack:"id"`
	Name    string  `msgpack:"n"`
	Country string  `msgpack:"cc"`
	Lon     float64 `msgpack:"lon"`
	Lat     float64 `msgpack:"lat"`
}

// GroupMessage is one letter bucket.
type GroupMessage struct {
	Header string        `msgpack:"h"`
	Cities []CityMessage `msgpack:"r"`
}

// StateMessage mirrors query.State. ID is set only when answering a state op.
type StateMessage struct {
	Kind      string         `msgpack:"k"`
	ID        string         `msgpack:"id,omitempty"`
	Phase     string         `msgpack:"ph"`
	Query     string         `msgpack:"q"`
	Groups    []GroupMessage `msgpack:"g"`
	Count     int            `msgpack:"n"`
	Truncated bool           `msgpack:"tr,omitempty"`
	Error     string         `msgpack:"e,omitempty"`
}

// EventMessage carries a one-shot event. Open events include map links.
type EventMessage struct {
	Kind   string       `msgpack:"k"`
	Event  string       `msgpack:"ev"`
	City   *CityMessage `msgpack:"city,omitempty"`
	URL    string       `msgpack:"url,omitempty"`
	GeoURI string       `msgpack:"geo,omitempty"`
}

// KeysResponse lists distinct display names. TimeTaken is in microseconds.
type KeysResponse struct {
	Kind      string   `msgpack:"k"`
	ID        string   `msgpack:"id"`
	Keys      []string `msgpack:"s"`
	Count     int      `msgpack:"n"`
	TimeTaken int64    `msgpack:"t"`
}

// NearbyCity is a city with its distance from the requested one.
type NearbyCity struct {
	City       CityMessage `msgpack:"city"`
	DistanceKm float64     `msgpack:"km"`
}

// NearResponse lists the closest cities to a record, nearest first.
type NearResponse struct {
	Kind   string       `msgpack:"k"`
	ID     string       `msgpack:"id"`
	Cities []NearbyCity `msgpack:"r"`
}

// AckMessage confirms an op that has no payload of its own.
type AckMessage struct {
	Kind string `msgpack:"k"`
	ID   string `msgpack:"id"`
	Op   string `msgpack:"op"`
}

// ErrorMessage reports a rejected request.
type ErrorMessage struct {
	Kind  string `msgpack:"k"`
	ID    string `msgpack:"id,omitempty"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"code"`
}
