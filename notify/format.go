package notify

import (
	"fmt"
	"strings"
	"time"

	"trailguard/core"
)

// FormatAlert renders the outbound alert text for a detection. A non-empty
// custom message replaces the generated body but keeps the detail lines so
// recipients always see what and where.
func FormatAlert(d *core.Detection, customMessage string) string {
	var b strings.Builder

	if customMessage != "" {
		b.WriteString(strings.TrimSpace(customMessage))
	} else {
		b.WriteString(fmt.Sprintf("Wildlife Alert: %s detected", strings.ToUpper(d.Species)))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Species: %s (%.1f%% confidence)\n", titleCase(d.Species), d.Confidence*100))

	device := d.DeviceName
	if device == "" {
		device = d.DeviceID
	}
	b.WriteString(fmt.Sprintf("Device: %s", device))
	if d.CameraID != "" {
		b.WriteString(fmt.Sprintf(" / %s", d.CameraID))
	}
	b.WriteString("\n")

	if d.Location != nil {
		if d.Location.Name != "" {
			b.WriteString(fmt.Sprintf("Location: %s (%.5f, %.5f)\n",
				d.Location.Name, d.Location.Latitude, d.Location.Longitude))
		} else {
			b.WriteString(fmt.Sprintf("Location: %.5f, %.5f\n",
				d.Location.Latitude, d.Location.Longitude))
		}
	}

	b.WriteString(fmt.Sprintf("Time: %s", d.Timestamp.UTC().Format(time.RFC3339)))
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
