package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMinor(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr error
	}{
		{in: "", want: 0},
		{in: "0", want: 0},
		{in: "150", want: 15000},
		{in: "150.00", want: 15000},
		{in: "0.5", want: 50},
		{in: "12.34", want: 1234},
		{in: "-3.10", want: -310},
		{in: "1.005", wantErr: ErrTooPrecise},
		{in: "abc", wantErr: ErrInvalidAmount},
		{in: "100000000000000000000", wantErr: ErrOutOfRange},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMinor(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ParseMinor(%q) error = %v, want %v", tc.in, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMinor(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseMinor(%q) = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestFormatMinor(t *testing.T) {
	tests := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		15000: "150.00",
		1234:  "12.34",
		-310:  "-3.10",
	}
	for in, want := range tests {
		if got := FormatMinor(in); got != want {
			t.Fatalf("FormatMinor(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, minor := range []int64{0, 1, 99, 100, 123456789} {
		parsed, err := ParseMinor(FormatMinor(minor))
		if err != nil {
			t.Fatalf("round trip %d: %v", minor, err)
		}
		if parsed != minor {
			t.Fatalf("round trip %d: got %d", minor, parsed)
		}
	}
	if !ToDecimal(1234).Equal(decimal.RequireFromString("12.34")) {
		t.Fatal("ToDecimal(1234) must equal 12.34")
	}
}
