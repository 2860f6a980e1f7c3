package paystack

import "strings"

// Interval maps a local billing interval onto Paystack's plan interval
// vocabulary. Unknown intervals fall back to monthly.
func Interval(billingInterval string) string {
	switch strings.ToLower(strings.TrimSpace(billingInterval)) {
	case "daily":
		return "daily"
	case "weekly":
		return "weekly"
	case "monthly":
		return "monthly"
	case "quarterly":
		return "quarterly"
	case "yearly", "annually":
		return "annually"
	default:
		return "monthly"
	}
}
