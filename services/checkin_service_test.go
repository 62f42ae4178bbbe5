package services

import (
	"errors"
	"testing"
)

func f64(v float64) *float64 { return &v }

func TestValidateCoordinates(t *testing.T) {
	cases := []struct {
		name    string
		lat     *float64
		lon     *float64
		wantErr bool
	}{
		{"both absent", nil, nil, false},
		{"valid pair", f64(25.3), f64(51.4), false},
		{"lat at north pole", f64(90), f64(0), false},
		{"lat out of range", f64(90.1), f64(0), true},
		{"lat far out of range", f64(-200), nil, true},
		{"lon at antimeridian", nil, f64(-180), false},
		{"lon out of range", nil, f64(180.5), true},
	}

	for _, tc := range cases {
		err := ValidateCoordinates(tc.lat, tc.lon)
		if tc.wantErr && !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%s: expected ErrInvalidCoordinates, got %v", tc.name, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}
