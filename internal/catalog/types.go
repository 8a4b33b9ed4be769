package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/offlinegen/pkg/mediapath"
)

// ChannelRecord is one row of the channel metadata sheet.
type ChannelRecord struct {
	Path       string `json:"path"`
	ExternalID string `json:"externalId"`
	Title      string `json:"title"`
	LiveURL    string `json:"liveUrl"`
	EditURL    string `json:"editUrl"`
	Online     Flag   `json:"online"`
}

// Flag is a spreadsheet boolean: true, yes, y, 1 or x (any case) are set;
// anything else, including a missing cell, is not.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*f = false
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Flag(truthy(s))
	default:
		*f = Flag(truthy(string(data)))
	}
	return nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "x":
		return true
	}
	return false
}

// Time is a catalog timestamp, written as UTC ISO-8601 with milliseconds.
type Time struct {
	time.Time
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FromMillis converts epoch milliseconds.
func FromMillis(ms int64) Time {
	return Time{time.UnixMilli(ms).UTC()}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.UTC().Format(timeLayout))), nil
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("catalog time: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ChannelEntry is one published channel. ManifestPath is null for online
// channels, which are not provisioned offline.
type ChannelEntry struct {
	ManifestPath *string           `json:"manifestPath"`
	LastModified Time              `json:"lastModified"`
	ExternalID   string            `json:"externalId"`
	Title        string            `json:"title"`
	LiveURL      string            `json:"liveUrl"`
	EditURL      string            `json:"editUrl,omitempty"`
	Hierarchy    []mediapath.Crumb `json:"hierarchy"`

	// page path and manifest size, for ordering and the run summary
	path    string
	entries int
}

// Path is the page the channel was built from.
func (e ChannelEntry) Path() string { return e.path }

// Entries is the number of entries in the channel's manifest.
func (e ChannelEntry) Entries() int { return e.entries }

// Catalog is the published list of channels, sorted by external id.
type Catalog struct {
	Channels []ChannelEntry `json:"channels"`
}
