package sheetsync

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Converted cell values are one of: nil (null), string, decimal.Decimal,
// time.Time. Malformed data never errors; it converts to nil.

var numberJunk = strings.NewReplacer(
	",", "", "，", "",
	"¥", "", "￥", "", "$", "", "円", "",
	" ", "", "　", "",
)

// convertCell applies one conversion directive to a raw cell. now anchors
// the year-omitted date fallback.
func convertCell(kind ConversionKind, raw string, now time.Time) any {
	switch kind {
	case KindNumber:
		if d := convertNumber(raw); d != nil {
			return *d
		}
		return nil
	case KindDate:
		if ts := convertDate(raw, now); ts != nil {
			return *ts
		}
		return nil
	case KindDateTime:
		if ts := convertDateTime(raw); ts != nil {
			return *ts
		}
		return nil
	default:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil
		}
		return trimmed
	}
}

// convertNumber strips thousands separators and currency symbols before
// parsing. Empty or unparsable cells become nil.
func convertNumber(raw string) *decimal.Decimal {
	cleaned := numberJunk.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

var dateLayouts = []string{
	"2006/1/2",
	"2006-1-2",
	"1/2/2006",
}

// convertDate accepts YYYY/M/D, YYYY-M-D, M/D/YYYY and bare M/D. A bare M/D
// is interpreted in the current year (the year of now).
func convertDate(raw string, now time.Time) *time.Time {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	// Year-omitted fallback: staff often type "12/20" for the current year.
	if ts, err := time.Parse("1/2", cleaned); err == nil {
		day := time.Date(now.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		return &day
	}
	return nil
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
}

// convertDateTime attempts a generic timestamp parse first, then the
// sheet-style YYYY/M/D H:mm[:ss] fallbacks. Normalized to a UTC instant.
func convertDateTime(raw string) *time.Time {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

// formatCell renders a converted value back to the sheet representation.
// The inverse of convertCell up to normalization.
func formatCell(kind ConversionKind, v any) string {
	if v == nil {
		return ""
	}
	switch kind {
	case KindNumber:
		if d, ok := v.(decimal.Decimal); ok {
			return d.String()
		}
	case KindDate:
		if ts, ok := v.(time.Time); ok {
			return ts.Format("2006-01-02")
		}
	case KindDateTime:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Format(time.RFC3339)
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// normalizeForCompare canonicalizes a converted value so that null, empty
// and whitespace-only cells compare as equivalent, and typed values compare
// by normalized rendering rather than raw cell text.
func normalizeForCompare(kind ConversionKind, v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return ""
		}
		// Raw string for a typed field: normalize through the converter so
		// "1,000" and "1000" compare equal.
		if kind != KindText {
			return normalizeForCompare(kind, convertCell(kind, s, time.Now()))
		}
		return s
	}
	return formatCell(kind, v)
}
