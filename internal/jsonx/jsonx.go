package jsonx

import "github.com/goccy/go-json"

// Thin wrapper so the stream codec can swap JSON implementations in one place.
var (
	Marshal    = json.Marshal
	Unmarshal  = json.Unmarshal
	NewDecoder = json.NewDecoder
	NewEncoder = json.NewEncoder
)
