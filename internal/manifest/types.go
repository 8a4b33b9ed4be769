package manifest

// Version is the manifest schema version written to every PageManifest.
const Version = "3.0"

// Rendition sizes for adaptive image variants.
const (
	RenditionLandscape = "landscape"
	RenditionPortrait  = "portrait"
)

// Entry is one resource in a page manifest. Non-media entries carry a
// Timestamp (epoch millis) when the origin reports one; media entries carry a
// content Hash instead. An entry with neither means freshness is unknown.
type Entry struct {
	Path       string      `json:"path"`
	Timestamp  *int64      `json:"timestamp,omitempty"`
	Hash       string      `json:"hash,omitempty"`
	Renditions []Rendition `json:"renditions,omitempty"`
}

// Rendition is a fixed-size derived variant of an image entry
type Rendition struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Provider is a content delivery endpoint
type Provider struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// ContentDelivery tells clients where entries are served from
type ContentDelivery struct {
	Providers       []Provider `json:"providers"`
	DefaultProvider string     `json:"defaultProvider"`
}

// DefaultContentDelivery serves everything from the origin root.
func DefaultContentDelivery() ContentDelivery {
	return ContentDelivery{
		Providers:       []Provider{{Name: "franklin", Endpoint: "/"}},
		DefaultProvider: "franklin",
	}
}

// PageManifest is the offline dependency listing of one page with its
// fragments flattened in. Entries are unique by path and sorted by path.
type PageManifest struct {
	Version         string          `json:"version"`
	Timestamp       int64           `json:"timestamp"`
	Entries         []Entry         `json:"entries"`
	ContentDelivery ContentDelivery `json:"contentDelivery"`
}

func timestampPtr(ms int64) *int64 {
	return &ms
}

// renditionSize holds the fixed dimensions per orientation.
var renditionSize = map[string][2]int{
	RenditionLandscape: {1408, 1024},
	RenditionPortrait:  {1024, 1408},
}
