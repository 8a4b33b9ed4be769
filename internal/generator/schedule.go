package generator

import (
	"fmt"
	"strings"
	"time"
)

var (
	timeLayouts = []string{"15:04", "15:04:05"}
	dateLayouts = []string{"01/02/2006", "2006-01-02"}

	imageFormats = []string{".png", ".jpg", ".jpeg", ".raw", ".tiff"}
	videoFormats = []string{".mp4", ".wmv", ".avi", ".mpg"}
)

// validateTime accepts HH:MM or HH:MM:SS. Empty means unbounded.
func validateTime(v string) error {
	return matchLayouts(v, timeLayouts, "time")
}

// validateDate accepts MM/DD/YYYY or YYYY-MM-DD. Empty means unbounded.
func validateDate(v string) error {
	return matchLayouts(v, dateLayouts, "date")
}

func matchLayouts(v string, layouts []string, kind string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range layouts {
		if _, err := time.Parse(layout, v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (expected %s)", kind, v, strings.Join(layouts, " or "))
}

// isGMT reports whether a schedule's timezone column selects GMT/UTC rather
// than the player's local time.
func isGMT(tz string) bool {
	switch strings.ToUpper(strings.TrimSpace(tz)) {
	case "GMT", "UTC", "Z":
		return true
	}
	return false
}

// mediaType classifies an asset link by extension. Video wins when both kinds
// of extension appear in the link.
func mediaType(link string) (string, error) {
	l := strings.ToLower(link)
	kind := ""
	for _, f := range imageFormats {
		if strings.Contains(l, f) {
			kind = "image"
		}
	}
	for _, f := range videoFormats {
		if strings.Contains(l, f) {
			kind = "video"
		}
	}
	if kind == "" {
		return "", fmt.Errorf("incompatible asset format: %s", link)
	}
	return kind, nil
}
