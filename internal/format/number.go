package format

import "fmt"

// Placeholder is shown in text panels for values the server did not send.
const Placeholder = "N/A"

// Percent renders a one-decimal percentage ("57.3%"), or Placeholder.
func Percent(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.1f%%", *v)
}

// Fixed renders v with prec decimals, or Placeholder.
func Fixed(v *float64, prec int) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

// Seconds renders a duration in seconds with four decimals ("0.0123s").
func Seconds(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.4fs", *v)
}

// Count renders an optional integer with group separators.
func Count(v *int) string {
	if v == nil {
		return Placeholder
	}
	return Thousands(*v)
}

// Speedup renders a speedup badge: "4.00x faster".
func Speedup(v float64) string {
	return fmt.Sprintf("%.2fx faster", v)
}

// Ratio returns part/whole as a percentage, or nil when either is missing or
// whole is zero.
func Ratio(part, whole *float64) *float64 {
	if part == nil || whole == nil || *whole == 0 {
		return nil
	}
	r := *part / *whole * 100
	return &r
}

// KB converts a byte count to kilobytes (1024).
func KB(bytes float64) float64 {
	return bytes / 1024
}

// ValueOr dereferences v, substituting def when v is nil.
func ValueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
