package event

import (
	"regexp"
	"strings"
)

// Device classes inferred from the user agent
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceWeb     = "web"
	DeviceUnknown = "unknown"
)

var (
	tabletUA = regexp.MustCompile(`(?i)tablet|ipad|playbook|silk|kindle`)
	mobileUA = regexp.MustCompile(`(?i)mobile|iphone|ipod|android|blackberry|iemobile|opera m(obi|ini)|(hpw|web)os`)
)

// ClassifyDevice maps a user agent to tablet, mobile or web. Android agents
// without "mobi" are tablets. An empty agent is unknown.
func ClassifyDevice(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return DeviceUnknown
	}
	ua := strings.ToLower(userAgent)
	if tabletUA.MatchString(ua) || (strings.Contains(ua, "android") && !strings.Contains(ua, "mobi")) {
		return DeviceTablet
	}
	if mobileUA.MatchString(ua) {
		return DeviceMobile
	}
	return DeviceWeb
}
