package geo

import (
	"errors"
	"math"
	"testing"
)

func TestCoordinate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		coord   Coordinate
		wantErr bool
	}{
		{name: "paris", coord: Coordinate{Lat: 48.8584, Lon: 2.2945}},
		{name: "poles and antimeridian", coord: Coordinate{Lat: -90, Lon: 180}},
		{name: "latitude too high", coord: Coordinate{Lat: 90.1, Lon: 0}, wantErr: true},
		{name: "longitude too low", coord: Coordinate{Lat: 0, Lon: -180.5}, wantErr: true},
		{name: "nan latitude", coord: Coordinate{Lat: math.NaN(), Lon: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coord.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Errorf("expected ErrInvalidCoordinate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLineString_RoundTrip(t *testing.T) {
	coords := []Coordinate{
		{Lat: 48.8584, Lon: 2.2945},
		{Lat: 48.8606, Lon: 2.3376},
	}

	ls := LineString(coords)
	if len(ls) != 2 {
		t.Fatalf("expected 2 points, got %d", len(ls))
	}
	if ls[0][0] != 2.2945 || ls[0][1] != 48.8584 {
		t.Errorf("expected [lon, lat] order, got %v", ls[0])
	}

	back := FromLineString(ls)
	for i := range coords {
		if back[i] != coords[i] {
			t.Errorf("coordinate %d: expected %+v, got %+v", i, coords[i], back[i])
		}
	}
}

func TestBoxAround(t *testing.T) {
	center := Coordinate{Lat: 48.8584, Lon: 2.2945}
	box := BoxAround(center, 5000)

	if !box.Contains(center) {
		t.Fatal("expected box to contain its center")
	}

	latSpanMeters := (box.MaxLat - box.MinLat) * metersPerDegreeLat
	if math.Abs(latSpanMeters-5000) > 1 {
		t.Errorf("expected 5000m latitude span, got %.2f", latSpanMeters)
	}

	// Longitude degrees are shorter away from the equator, so the span in degrees is wider.
	if box.MaxLon-box.MinLon <= box.MaxLat-box.MinLat {
		t.Errorf("expected longitude span wider than latitude span at lat %.2f", center.Lat)
	}

	c := box.Center()
	if math.Abs(c.Lat-center.Lat) > 1e-9 || math.Abs(c.Lon-center.Lon) > 1e-9 {
		t.Errorf("expected center %+v, got %+v", center, c)
	}
}

func TestBoxAround_ClampsAtPole(t *testing.T) {
	box := BoxAround(Coordinate{Lat: 89.99, Lon: 179.99}, 5000)
	if box.MaxLat > 90 || box.MaxLon > 180 {
		t.Errorf("expected clamped box, got %+v", box)
	}
}
