package whatsapp

import "strings"

// ParseRecipients splits a comma-separated phone number list, trimming
// whitespace and dropping empty entries.
func ParseRecipients(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// wireNumber strips the formatting the Graph API does not accept in "to".
func wireNumber(phone string) string {
	return strings.NewReplacer("+", "", " ", "", "-", "").Replace(phone)
}
