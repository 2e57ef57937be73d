package mapstate

import (
	"github.com/paulmach/orb/geojson"

	"github.com/mockcarpool/carpool/internal/geo"
)

// FeatureCollection renders the view as GeoJSON: one Point feature per
// annotation and a LineString feature for the overlay. The collection bbox is
// the region when one is set.
func (v View) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, a := range v.Annotations {
		f := geojson.NewFeature(a.Coordinate.Point())
		f.Properties["kind"] = "annotation"
		f.Properties["role"] = string(a.Role)
		f.Properties["label"] = a.Label
		fc.Append(f)
	}

	if len(v.Overlay) > 0 {
		f := geojson.NewFeature(geo.LineString(v.Overlay))
		f.Properties["kind"] = "route"
		fc.Append(f)
	}

	if v.Region != nil {
		fc.BBox = geojson.NewBBox(v.Region.Bound())
	}

	return fc
}
