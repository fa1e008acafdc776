package model

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestWindowOverlapsInclusive(t *testing.T) {
	base := Window{CheckIn: day("2024-01-01"), CheckOut: day("2024-01-05")}

	cases := []struct {
		name  string
		other Window
		want  bool
	}{
		{"inside", Window{day("2024-01-02"), day("2024-01-03")}, true},
		{"tail overlap", Window{day("2024-01-04"), day("2024-01-06")}, true},
		{"head overlap", Window{day("2023-12-30"), day("2024-01-02")}, true},
		{"enclosing", Window{day("2023-12-01"), day("2024-02-01")}, true},
		// Same-day checkout/check-in collides under the inclusive rule.
		{"checkin on checkout day", Window{day("2024-01-05"), day("2024-01-07")}, true},
		{"checkout on checkin day", Window{day("2023-12-28"), day("2024-01-01")}, true},
		{"strictly after", Window{day("2024-01-06"), day("2024-01-08")}, false},
		{"strictly before", Window{day("2023-12-20"), day("2023-12-31")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := base.Overlaps(tc.other); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
			if got := tc.other.Overlaps(base); got != tc.want {
				t.Fatalf("Overlaps is not symmetric for %s", tc.name)
			}
		})
	}
}

func TestWindowValid(t *testing.T) {
	if !(Window{day("2024-01-01"), day("2024-01-02")}).Valid() {
		t.Fatal("expected ordered window to be valid")
	}
	if (Window{day("2024-01-02"), day("2024-01-02")}).Valid() {
		t.Fatal("expected zero-length window to be invalid")
	}
	if (Window{day("2024-01-03"), day("2024-01-02")}).Valid() {
		t.Fatal("expected reversed window to be invalid")
	}
}
