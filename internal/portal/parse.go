package portal

import (
	"regexp"
	"strings"
)

var (
	buttonRe      = regexp.MustCompile(`(?is)<button([^>]*)>(.*?)</button>`)
	driverRe      = regexp.MustCompile(`(?i)name="DriverName"[^>]*value="([^"]*)"`)
	containerRe   = regexp.MustCompile(`(?i)name="ContainerNumber"[^>]*value="([^"]*)"`)
	profileUserRe = regexp.MustCompile(`(?is)<span[^>]*class="[^"]*user-name[^"]*"[^>]*>(.*?)</span>`)
)

// SlotOpen scans the shared slot page for a button covering the given
// window (clock strings "HH:mm"). A button that exists but is disabled
// means the slot is still taken.
func SlotOpen(html, startClock, endClock string) bool {
	if startClock == "" || endClock == "" {
		return false
	}

	for _, m := range buttonRe.FindAllStringSubmatch(html, -1) {
		attrs, label := m[1], m[2]
		if !strings.Contains(label, startClock) || !strings.Contains(label, endClock) {
			continue
		}
		if strings.Contains(strings.ToLower(attrs), "disabled") {
			return false
		}
		return true
	}
	return false
}

// ExtractBookingMeta pulls driver name and container number from the
// booking edit form.
func ExtractBookingMeta(html string) (driverName, containerNumber string) {
	if m := driverRe.FindStringSubmatch(html); m != nil {
		driverName = strings.TrimSpace(m[1])
	}
	if m := containerRe.FindStringSubmatch(html); m != nil {
		containerNumber = strings.TrimSpace(m[1])
	}
	return driverName, containerNumber
}

// IsErrorPage detects the portal's login/error pages, which it serves
// with a 200 once the session dies.
func IsErrorPage(body string) bool {
	lower := strings.ToLower(body)
	if strings.Contains(lower, `id="loginform"`) || strings.Contains(lower, `action="/login"`) {
		return true
	}
	if strings.Contains(lower, "<title>") && strings.Contains(lower, "ошибка") {
		return true
	}
	return strings.Contains(lower, `class="error-page"`)
}

func extractProfileUser(body string) string {
	if m := profileUserRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
