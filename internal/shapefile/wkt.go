package shapefile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
)

// GeometryName returns the OGC type name stored in geometry_columns_meta.
// Z and M variants are reported as their 2D base type because only X/Y are
// written.
func GeometryName(t shp.ShapeType) string {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return "POINT"
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return "MULTILINESTRING"
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return "MULTIPOLYGON"
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return "MULTIPOINT"
	default:
		return "GEOMETRY"
	}
}

// WKT renders a shape as well-known text. ok is false for null shapes and
// for shape types that carry no X/Y coordinates (multipatch).
func WKT(s shp.Shape) (wkt string, ok bool) {
	switch g := s.(type) {
	case *shp.Point:
		return pointWKT(g.X, g.Y), true
	case *shp.PointZ:
		return pointWKT(g.X, g.Y), true
	case *shp.PointM:
		return pointWKT(g.X, g.Y), true
	case *shp.MultiPoint:
		return multiPointWKT(g.Points), true
	case *shp.MultiPointZ:
		return multiPointWKT(g.Points), true
	case *shp.MultiPointM:
		return multiPointWKT(g.Points), true
	case *shp.PolyLine:
		return lineWKT(splitParts(g.Parts, g.Points)), true
	case *shp.PolyLineZ:
		return lineWKT(splitParts(g.Parts, g.Points)), true
	case *shp.PolyLineM:
		return lineWKT(splitParts(g.Parts, g.Points)), true
	case *shp.Polygon:
		return polygonWKT(splitParts(g.Parts, g.Points)), true
	case *shp.PolygonZ:
		return polygonWKT(splitParts(g.Parts, g.Points)), true
	case *shp.PolygonM:
		return polygonWKT(splitParts(g.Parts, g.Points)), true
	default:
		return "", false
	}
}

func splitParts(parts []int32, pts []shp.Point) [][]shp.Point {
	if len(parts) == 0 {
		if len(pts) == 0 {
			return nil
		}
		return [][]shp.Point{pts}
	}
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(pts) {
			continue
		}
		out = append(out, pts[start:end])
	}
	return out
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func pointWKT(x, y float64) string {
	return fmt.Sprintf("POINT (%s %s)", num(x), num(y))
}

func coordList(pts []shp.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = num(p.X) + " " + num(p.Y)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func multiPointWKT(pts []shp.Point) string {
	if len(pts) == 0 {
		return "MULTIPOINT EMPTY"
	}
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = "(" + num(p.X) + " " + num(p.Y) + ")"
	}
	return "MULTIPOINT (" + strings.Join(parts, ", ") + ")"
}

func lineWKT(lines [][]shp.Point) string {
	switch len(lines) {
	case 0:
		return "LINESTRING EMPTY"
	case 1:
		return "LINESTRING " + coordList(lines[0])
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = coordList(l)
	}
	return "MULTILINESTRING (" + strings.Join(parts, ", ") + ")"
}

// polygonWKT groups rings into polygons. Shapefile outer rings run
// clockwise and holes counter-clockwise; a hole belongs to the outer ring
// written before it.
func polygonWKT(rings [][]shp.Point) string {
	var polys [][][]shp.Point
	for _, r := range rings {
		if len(polys) == 0 || signedArea(r) <= 0 {
			polys = append(polys, [][]shp.Point{r})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], r)
	}

	render := func(p [][]shp.Point) string {
		parts := make([]string, len(p))
		for i, r := range p {
			parts[i] = coordList(r)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}

	switch len(polys) {
	case 0:
		return "POLYGON EMPTY"
	case 1:
		return "POLYGON " + render(polys[0])
	}
	parts := make([]string, len(polys))
	for i, p := range polys {
		parts[i] = render(p)
	}
	return "MULTIPOLYGON (" + strings.Join(parts, ", ") + ")"
}

// signedArea is positive for counter-clockwise rings.
func signedArea(r []shp.Point) float64 {
	var sum float64
	for i := range r {
		j := (i + 1) % len(r)
		sum += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return sum / 2
}
