package sheetsync

import (
	"testing"
	"time"
)

func TestConvertNumber_StripsFormatting(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"2,500,000", "2500000"},
		{"¥2,500,000", "2500000"},
		{"￥1,200", "1200"},
		{"3000円", "3000"},
		{"  1,234.50  ", "1234.5"},
		{"1，000", "1000"},
	}
	for _, tc := range cases {
		d := convertNumber(tc.in)
		if d == nil {
			t.Fatalf("convertNumber(%q) returned nil", tc.in)
		}
		if d.String() != tc.expected {
			t.Fatalf("convertNumber(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestConvertNumber_MalformedBecomesNil(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "12abc", "1.2.3"} {
		if d := convertNumber(in); d != nil {
			t.Fatalf("convertNumber(%q) expected nil, got %s", in, d.String())
		}
	}
}

func TestConvertDate_Layouts(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		in       string
		expected string
	}{
		{"2025/1/5", "2025-01-05"},
		{"2025/01/05", "2025-01-05"},
		{"2025-1-5", "2025-01-05"},
		{"1/5/2025", "2025-01-05"},
	}
	for _, tc := range cases {
		ts := convertDate(tc.in, now)
		if ts == nil {
			t.Fatalf("convertDate(%q) returned nil", tc.in)
		}
		if got := ts.Format("2006-01-02"); got != tc.expected {
			t.Fatalf("convertDate(%q) expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}

func TestConvertDate_BareMonthDayUsesCurrentYear(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ts := convertDate("12/20", now)
	if ts == nil {
		t.Fatal("convertDate(12/20) returned nil")
	}
	if got := ts.Format("2006-01-02"); got != "2025-12-20" {
		t.Fatalf("expected 2025-12-20, got %s", got)
	}
}

func TestConvertDate_MalformedBecomesNil(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"", "  ", "not a date", "13/45/2025", "2025/13/1"} {
		if ts := convertDate(in, now); ts != nil {
			t.Fatalf("convertDate(%q) expected nil, got %s", in, ts)
		}
	}
}

func TestConvertDateTime_Layouts(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"2025-01-05T14:30:00Z", "2025-01-05T14:30:00Z"},
		{"2025-01-05T14:30:00", "2025-01-05T14:30:00Z"},
		{"2025/1/5 14:30", "2025-01-05T14:30:00Z"},
		{"2025/1/5 14:30:45", "2025-01-05T14:30:45Z"},
	}
	for _, tc := range cases {
		ts := convertDateTime(tc.in)
		if ts == nil {
			t.Fatalf("convertDateTime(%q) returned nil", tc.in)
		}
		if got := ts.UTC().Format(time.RFC3339); got != tc.expected {
			t.Fatalf("convertDateTime(%q) expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}

func TestNormalizeForCompare_NullAndBlankAreEquivalent(t *testing.T) {
	for _, v := range []any{nil, "", "   ", "　"} {
		if got := normalizeForCompare(KindText, v); got != "" {
			t.Fatalf("normalizeForCompare(text, %#v) expected empty, got %q", v, got)
		}
	}
}

func TestNormalizeForCompare_NumberFormattingIsIgnored(t *testing.T) {
	a := normalizeForCompare(KindNumber, "1,000")
	b := normalizeForCompare(KindNumber, "1000")
	if a != b {
		t.Fatalf("formatted and plain numbers should compare equal: %q vs %q", a, b)
	}
	c := normalizeForCompare(KindNumber, "1001")
	if a == c {
		t.Fatal("different numbers should not compare equal")
	}
}

func TestNormalizeForCompare_DateRawStringMatchesTyped(t *testing.T) {
	typed := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	a := normalizeForCompare(KindDate, "2025/1/5")
	b := normalizeForCompare(KindDate, typed)
	if a != b {
		t.Fatalf("raw cell and typed date should compare equal: %q vs %q", a, b)
	}
}
