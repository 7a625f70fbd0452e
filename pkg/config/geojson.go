package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chrissnell/shadowflicker/pkg/geometry"
)

type geoJSONObject struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometry    *geoJSONObject  `json:"geometry,omitempty"`
	Features    []geoJSONObject `json:"features,omitempty"`
	Geometries  []geoJSONObject `json:"geometries,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
}

// ReadGeoJSON loads an AOI polygon from a GeoJSON file.
func ReadGeoJSON(filename string) (geometry.Polygon, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	p, err := ParseGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p, nil
}

// ParseGeoJSON extracts one polygon from a GeoJSON document. Collections
// contribute their first member and a MultiPolygon its largest polygon.
// Interior rings are ignored.
func ParseGeoJSON(data []byte) (geometry.Polygon, error) {
	var obj geoJSONObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("error parsing GeoJSON: %w", err)
	}
	return obj.polygon()
}

func (o *geoJSONObject) polygon() (geometry.Polygon, error) {
	switch o.Type {
	case "FeatureCollection":
		if len(o.Features) == 0 {
			return nil, fmt.Errorf("%w: empty FeatureCollection", ErrUnsupportedFormat)
		}
		return o.Features[0].polygon()

	case "Feature":
		if o.Geometry == nil {
			return nil, fmt.Errorf("%w: feature without geometry", ErrUnsupportedFormat)
		}
		return o.Geometry.polygon()

	case "GeometryCollection":
		if len(o.Geometries) == 0 {
			return nil, fmt.Errorf("%w: empty GeometryCollection", ErrUnsupportedFormat)
		}
		return o.Geometries[0].polygon()

	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(o.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("error parsing Polygon coordinates: %w", err)
		}
		if len(rings) == 0 {
			return nil, fmt.Errorf("%w: Polygon without rings", ErrUnsupportedFormat)
		}
		return geometry.NewPolygon(rings[0]), nil

	case "MultiPolygon":
		var polygons [][][][2]float64
		if err := json.Unmarshal(o.Coordinates, &polygons); err != nil {
			return nil, fmt.Errorf("error parsing MultiPolygon coordinates: %w", err)
		}
		var largest geometry.Polygon
		for _, rings := range polygons {
			if len(rings) == 0 {
				continue
			}
			p := geometry.NewPolygon(rings[0])
			if largest == nil || p.Area() > largest.Area() {
				largest = p
			}
		}
		if largest == nil {
			return nil, fmt.Errorf("%w: MultiPolygon without polygons", ErrUnsupportedFormat)
		}
		return largest, nil
	}

	return nil, fmt.Errorf("%w: GeoJSON type %q is not a polygon", ErrUnsupportedFormat, o.Type)
}

// MarshalGeoJSON encodes a polygon as a GeoJSON Feature.
func MarshalGeoJSON(p geometry.Polygon, properties map[string]any) ([]byte, error) {
	coords, err := json.Marshal([][][2]float64{p.Coords()})
	if err != nil {
		return nil, err
	}
	return json.Marshal(geoJSONObject{
		Type:       "Feature",
		Properties: properties,
		Geometry:   &geoJSONObject{Type: "Polygon", Coordinates: coords},
	})
}
