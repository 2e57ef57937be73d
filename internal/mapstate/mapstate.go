// Package mapstate derives the renderable map view from resolved places and a route.
// Everything here is a pure function of its inputs.
package mapstate

import (
	"math"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/routing"
)

const (
	// PlaceRegionMeters is the side of the region shown around a single place.
	PlaceRegionMeters = 5000

	// routePaddingRatio expands the route bounding box on every side.
	routePaddingRatio = 0.1

	// minRoutePadding keeps very short routes from filling the viewport edge to edge (~110m).
	minRoutePadding = 0.001
)

// Role identifies which field an annotation belongs to.
type Role string

const (
	RoleStart Role = "start"
	RoleEnd   Role = "end"
)

// Annotation is a labelled pin.
type Annotation struct {
	Role       Role           `json:"role"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Label      string         `json:"label"`
}

// View is the map state shown to the user.
type View struct {
	// Region is the visible area, nil when nothing is resolved.
	Region *geo.BoundingBox `json:"region,omitempty"`
	// Overlay is the route polyline, nil when there is no route.
	Overlay     []geo.Coordinate `json:"overlay,omitempty"`
	Annotations []Annotation     `json:"annotations"`
}

// Input is everything the view depends on.
type Input struct {
	Start *geocoding.Place
	End   *geocoding.Place
	Route *routing.Result
}

// Derive computes the view from scratch:
//   - a route frames its padded bounding box and is drawn as the overlay;
//   - otherwise exactly one place frames a PlaceRegionMeters box around it;
//   - otherwise the region is unset.
//
// There is one annotation per present place, start first.
func Derive(in Input) View {
	v := View{Annotations: []Annotation{}}

	if in.Start != nil {
		v.Annotations = append(v.Annotations, Annotation{Role: RoleStart, Coordinate: in.Start.Coordinate, Label: in.Start.DisplayName})
	}
	if in.End != nil {
		v.Annotations = append(v.Annotations, Annotation{Role: RoleEnd, Coordinate: in.End.Coordinate, Label: in.End.DisplayName})
	}

	switch {
	case in.Route != nil && len(in.Route.Polyline) > 0:
		v.Overlay = append([]geo.Coordinate(nil), in.Route.Polyline...)
		region := routeRegion(in.Route.Polyline)
		v.Region = &region
	case len(v.Annotations) == 1:
		region := geo.BoxAround(v.Annotations[0].Coordinate, PlaceRegionMeters)
		v.Region = &region
	}

	return v
}

func routeRegion(line []geo.Coordinate) geo.BoundingBox {
	box := geo.FromBound(geo.LineString(line).Bound())

	padLat := math.Max((box.MaxLat-box.MinLat)*routePaddingRatio, minRoutePadding)
	padLon := math.Max((box.MaxLon-box.MinLon)*routePaddingRatio, minRoutePadding)

	return geo.BoundingBox{
		MinLat: math.Max(box.MinLat-padLat, -90),
		MinLon: math.Max(box.MinLon-padLon, -180),
		MaxLat: math.Min(box.MaxLat+padLat, 90),
		MaxLon: math.Min(box.MaxLon+padLon, 180),
	}
}
