// Package geo implements the spatial zip-resolution boundary over a local
// GeoJSON file of ZIP polygons. It is the best-effort collaborator behind
// domain.ZipResolver: any failure here degrades to "no zip", never to a
// pipeline abort.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// zipPropertyCandidates are tried in order when reading the ZIP code from a
// feature's properties. Boundary files from different vendors disagree on
// the property name.
var zipPropertyCandidates = []string{"ZIPCODE", "ZIP", "zip", "zipcode"}

// Resolver answers point-in-polygon ZIP lookups from a GeoJSON
// FeatureCollection loaded at construction time.
type Resolver struct {
	zones  []zone
	logger *slog.Logger
}

// zone is one ZIP polygon: an outer ring plus optional hole rings, with a
// bounding box for cheap rejection.
type zone struct {
	zip    string
	rings  [][][2]float64 // ring -> vertex -> (lon, lat)
	minLon float64
	minLat float64
	maxLon float64
	maxLat float64
}

type featureCollection struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
		Geometry   struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// NewResolver loads ZIP polygons from a GeoJSON file. Features without a
// recognizable ZIP property or polygon geometry are skipped with a warning
// rather than failing the load.
func NewResolver(path string, logger *slog.Logger) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zip boundaries: %w", err)
	}

	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse zip boundaries: %w", err)
	}

	r := &Resolver{logger: logger}
	skipped := 0
	for _, f := range fc.Features {
		zip := zipProperty(f.Properties)
		if zip == "" {
			skipped++
			continue
		}

		var polygons [][][][2]float64
		switch f.Geometry.Type {
		case "Polygon":
			var p [][][2]float64
			if err := json.Unmarshal(f.Geometry.Coordinates, &p); err != nil {
				skipped++
				continue
			}
			polygons = append(polygons, p)
		case "MultiPolygon":
			if err := json.Unmarshal(f.Geometry.Coordinates, &polygons); err != nil {
				skipped++
				continue
			}
		default:
			skipped++
			continue
		}

		for _, rings := range polygons {
			if z, ok := newZone(zip, rings); ok {
				r.zones = append(r.zones, z)
			}
		}
	}

	if len(r.zones) == 0 {
		return nil, fmt.Errorf("zip boundaries %s: no usable polygon features", path)
	}
	if skipped > 0 {
		logger.Warn("skipped unusable zip boundary features", "skipped", skipped, "loaded", len(r.zones))
	}
	logger.Info("zip boundaries loaded", "polygons", len(r.zones))
	return r, nil
}

// LookupZip returns the ZIP whose polygon contains the point, or an empty
// string when no polygon does.
func (r *Resolver) LookupZip(_ context.Context, lat, lon float64) (string, error) {
	for i := range r.zones {
		z := &r.zones[i]
		if lon < z.minLon || lon > z.maxLon || lat < z.minLat || lat > z.maxLat {
			continue
		}
		if z.contains(lat, lon) {
			return z.zip, nil
		}
	}
	return "", nil
}

func zipProperty(props map[string]any) string {
	for _, name := range zipPropertyCandidates {
		if v, ok := props[name]; ok {
			s := strings.TrimSpace(fmt.Sprintf("%v", v))
			if s != "" {
				return s
			}
		}
	}
	return ""
}

func newZone(zip string, rings [][][2]float64) (zone, bool) {
	if len(rings) == 0 || len(rings[0]) < 3 {
		return zone{}, false
	}
	z := zone{zip: zip, rings: rings}
	z.minLon, z.maxLon = rings[0][0][0], rings[0][0][0]
	z.minLat, z.maxLat = rings[0][0][1], rings[0][0][1]
	for _, pt := range rings[0] {
		if pt[0] < z.minLon {
			z.minLon = pt[0]
		}
		if pt[0] > z.maxLon {
			z.maxLon = pt[0]
		}
		if pt[1] < z.minLat {
			z.minLat = pt[1]
		}
		if pt[1] > z.maxLat {
			z.maxLat = pt[1]
		}
	}
	return z, true
}

// contains applies the even-odd ray-casting rule across all rings, so holes
// punch out of the outer ring without special casing.
func (z *zone) contains(lat, lon float64) bool {
	inside := false
	for _, ring := range z.rings {
		n := len(ring)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			yi, yj := ring[i][1], ring[j][1]
			xi, xj := ring[i][0], ring[j][0]
			if (yi > lat) != (yj > lat) &&
				lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
				inside = !inside
			}
		}
	}
	return inside
}
