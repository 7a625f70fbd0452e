// Package geometry holds the planar polygon predicates and the rotor shadow
// model used by the flicker calendar. Coordinates are meters in a projected
// reference system.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrInvalidGeometry is returned for polygons that are not simple polygons.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Polygon is the exterior ring of a simple polygon. The ring is implicitly
// closed: the last vertex connects back to the first and is not repeated.
type Polygon []r2.Vec

// NewPolygon builds a polygon from x/y pairs, dropping a trailing vertex that
// repeats the first one.
func NewPolygon(coords [][2]float64) Polygon {
	p := make(Polygon, 0, len(coords))
	for _, c := range coords {
		p = append(p, r2.Vec{X: c[0], Y: c[1]})
	}
	if len(p) > 1 && p[0] == p[len(p)-1] {
		p = p[:len(p)-1]
	}
	return p
}

// Coords returns the ring as x/y pairs, closed (first vertex repeated last).
func (p Polygon) Coords() [][2]float64 {
	if len(p) == 0 {
		return nil
	}
	coords := make([][2]float64, 0, len(p)+1)
	for _, v := range p {
		coords = append(coords, [2]float64{v.X, v.Y})
	}
	return append(coords, [2]float64{p[0].X, p[0].Y})
}

// Bounds returns the axis-aligned bounding box. The zero Box is returned for
// an empty polygon.
func (p Polygon) Bounds() r2.Box {
	if len(p) == 0 {
		return r2.Box{}
	}
	box := r2.Box{Min: p[0], Max: p[0]}
	for _, v := range p[1:] {
		box.Min.X = math.Min(box.Min.X, v.X)
		box.Min.Y = math.Min(box.Min.Y, v.Y)
		box.Max.X = math.Max(box.Max.X, v.X)
		box.Max.Y = math.Max(box.Max.Y, v.Y)
	}
	return box
}

// signedArea is positive for counter-clockwise rings.
func (p Polygon) signedArea() float64 {
	var sum float64
	for i := range p {
		sum += r2.Cross(p[i], p[(i+1)%len(p)])
	}
	return sum / 2
}

// Area returns the enclosed area.
func (p Polygon) Area() float64 {
	return math.Abs(p.signedArea())
}

// Centroid returns the area centroid, or the vertex mean for degenerate rings.
func (p Polygon) Centroid() r2.Vec {
	if len(p) == 0 {
		return r2.Vec{}
	}
	a := p.signedArea()
	if a == 0 {
		var sum r2.Vec
		for _, v := range p {
			sum = r2.Add(sum, v)
		}
		return r2.Scale(1/float64(len(p)), sum)
	}
	// Relative to the first vertex to keep far-away rings accurate
	o := p[0]
	var c r2.Vec
	for i := range p {
		u := r2.Sub(p[i], o)
		w := r2.Sub(p[(i+1)%len(p)], o)
		c = r2.Add(c, r2.Scale(r2.Cross(u, w), r2.Add(u, w)))
	}
	return r2.Add(o, r2.Scale(1/(6*a), c))
}

// Contains reports whether v lies inside the polygon or on its boundary.
func (p Polygon) Contains(v r2.Vec) bool {
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[j], p[i]
		if orientation(a, b, v) == 0 && onSegment(a, b, v) {
			return true
		}
		if (a.Y > v.Y) != (b.Y > v.Y) {
			x := a.X + (v.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if v.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Validate checks that p is a simple polygon: at least three vertices, finite
// coordinates, non-zero area and no two non-adjacent edges touching.
func (p Polygon) Validate() error {
	if len(p) < 3 {
		return fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", ErrInvalidGeometry, len(p))
	}
	for i, v := range p {
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
			return fmt.Errorf("%w: vertex %d is not finite", ErrInvalidGeometry, i)
		}
		if v == p[(i+1)%len(p)] {
			return fmt.Errorf("%w: vertex %d is repeated", ErrInvalidGeometry, i)
		}
	}
	if p.Area() == 0 {
		return fmt.Errorf("%w: polygon has zero area", ErrInvalidGeometry)
	}

	n := len(p)
	for i := 0; i < n; i++ {
		a1, a2 := p[i], p[(i+1)%n]
		for j := i + 1; j < n; j++ {
			b1, b2 := p[j], p[(j+1)%n]
			switch {
			case j == i+1:
				if foldsBack(a1, a2, b2) {
					return fmt.Errorf("%w: edges %d and %d overlap", ErrInvalidGeometry, i, j)
				}
			case i == 0 && j == n-1:
				if foldsBack(a2, a1, b1) {
					return fmt.Errorf("%w: edges %d and %d overlap", ErrInvalidGeometry, i, j)
				}
			default:
				if segmentsIntersect(a1, a2, b1, b2) {
					return fmt.Errorf("%w: edges %d and %d intersect", ErrInvalidGeometry, i, j)
				}
			}
		}
	}
	return nil
}

// BoxesOverlap reports whether two boxes intersect, touching edges included.
func BoxesOverlap(a, b r2.Box) bool {
	return !(a.Max.X < b.Min.X || b.Max.X < a.Min.X || a.Max.Y < b.Min.Y || b.Max.Y < a.Min.Y)
}

// Intersects reports whether the two polygons share at least one point,
// boundaries included.
func Intersects(a, b Polygon) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for i := range a {
		a1, a2 := a[i], a[(i+1)%len(a)]
		for j := range b {
			if segmentsIntersect(a1, a2, b[j], b[(j+1)%len(b)]) {
				return true
			}
		}
	}
	// No boundary crossing: either disjoint or one contains the other.
	return a.Contains(b[0]) || b.Contains(a[0])
}

// IntersectsFast is Intersects with a bounding-box rejection first. It always
// returns the same answer as Intersects.
func IntersectsFast(aoi, candidate Polygon) bool {
	if !BoxesOverlap(aoi.Bounds(), candidate.Bounds()) {
		return false
	}
	return Intersects(aoi, candidate)
}

// Prepared is a polygon with its bounding box computed once, for repeated
// tests against many candidates.
type Prepared struct {
	Polygon Polygon
	Box     r2.Box
}

// Prepare caches the bounds of p.
func Prepare(p Polygon) *Prepared {
	return &Prepared{Polygon: p, Box: p.Bounds()}
}

// Intersects is IntersectsFast against the cached bounds.
func (pp *Prepared) Intersects(candidate Polygon) bool {
	if !BoxesOverlap(pp.Box, candidate.Bounds()) {
		return false
	}
	return Intersects(pp.Polygon, candidate)
}

// orientation returns the sign of the turn a→b→c: 1 counter-clockwise,
// -1 clockwise, 0 collinear.
func orientation(a, b, c r2.Vec) int {
	v := r2.Cross(r2.Sub(b, a), r2.Sub(c, a))
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment assumes a, b, c collinear and reports whether c lies within the
// closed segment ab.
func onSegment(a, b, c r2.Vec) bool {
	return math.Min(a.X, b.X) <= c.X && c.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= c.Y && c.Y <= math.Max(a.Y, b.Y)
}

func segmentsIntersect(p1, p2, q1, q2 r2.Vec) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}

	return (o1 == 0 && onSegment(p1, p2, q1)) ||
		(o2 == 0 && onSegment(p1, p2, q2)) ||
		(o3 == 0 && onSegment(q1, q2, p1)) ||
		(o4 == 0 && onSegment(q1, q2, p2))
}

// foldsBack reports whether the edges a→shared and shared→b are collinear and
// double back over each other.
func foldsBack(a, shared, b r2.Vec) bool {
	return orientation(a, shared, b) == 0 && r2.Dot(r2.Sub(a, shared), r2.Sub(b, shared)) > 0
}
