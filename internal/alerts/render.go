package alerts

import "strings"

// Render fills the template placeholders and prepends prefix. Unknown
// placeholders are left as written.
func Render(template string, rule Rule, value float64, deviceName, prefix string) string {
	r := strings.NewReplacer(
		"{tag_name}", rule.TagName,
		"{value}", formatNumber(value),
		"{threshold}", formatNumber(rule.ThresholdValue),
		"{operator}", rule.Operator.String(),
		"{device_name}", deviceName,
	)
	return strings.TrimSpace(prefix + " " + r.Replace(template))
}

// Message renders f with its own rule template.
func (f Firing) Message(deviceName, prefix string) string {
	return Render(f.Rule.MessageTemplate, f.Rule, f.Value, deviceName, prefix)
}
