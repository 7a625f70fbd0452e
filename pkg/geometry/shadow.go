package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// MinElevationDeg is the floor applied to the sun elevation before the
	// shadow is computed, so a sun at or below the horizon gives a very long
	// but finite shadow.
	MinElevationDeg = 0.001

	// DefaultVertices is the ring size used when none is requested.
	DefaultVertices = 64

	// MinVertices is the smallest ring ShadowBuilder will produce.
	MinVertices = 16
)

// Shadow is the worst-case elliptical shadow of a rotor disc on flat ground.
type Shadow struct {
	Center r2.Vec

	// SemiMajor lies along the sun-turbine line, SemiMinor across it.
	SemiMajor float64
	SemiMinor float64

	// Rotation is the angle of the major axis from +X, counter-clockwise, in
	// radians.
	Rotation float64
}

// NewShadow models the shadow of a rotor of radius rotorRadiusM whose hub is
// hubHeightM above the turbine base at (turbineX, turbineY), for a sun at the
// given azimuth (clockwise from north) and elevation.
func NewShadow(turbineX, turbineY, hubHeightM, rotorRadiusM, sunAzimuthDeg, sunElevationDeg float64) Shadow {
	elevation := degToRad(math.Min(math.Max(sunElevationDeg, MinElevationDeg), 90))
	azimuth := degToRad(sunAzimuthDeg)

	d := hubHeightM / math.Tan(elevation)
	sinAz, cosAz := math.Sincos(azimuth)

	return Shadow{
		Center:    r2.Vec{X: turbineX - d*sinAz, Y: turbineY - d*cosAz},
		SemiMajor: rotorRadiusM / math.Sin(elevation),
		SemiMinor: rotorRadiusM,
		Rotation:  degToRad(90 - sunAzimuthDeg),
	}
}

// Bounds returns the bounding box of the exact ellipse. Every polygon produced
// from s lies inside it.
func (s Shadow) Bounds() r2.Box {
	sin, cos := math.Sincos(s.Rotation)
	a2, b2 := s.SemiMajor*s.SemiMajor, s.SemiMinor*s.SemiMinor
	half := r2.Vec{
		X: math.Sqrt(a2*cos*cos + b2*sin*sin),
		Y: math.Sqrt(a2*sin*sin + b2*cos*cos),
	}
	return r2.Box{Min: r2.Sub(s.Center, half), Max: r2.Add(s.Center, half)}
}

// Polygon returns a newly allocated ring of the given number of vertices
// (at least MinVertices).
func (s Shadow) Polygon(vertices int) Polygon {
	return NewShadowBuilder(vertices).Build(s)
}

// ShadowEllipse builds the shadow polygon in one call with DefaultVertices.
func ShadowEllipse(turbineX, turbineY, hubHeightM, rotorRadiusM, sunAzimuthDeg, sunElevationDeg float64) Polygon {
	return NewShadow(turbineX, turbineY, hubHeightM, rotorRadiusM, sunAzimuthDeg, sunElevationDeg).Polygon(DefaultVertices)
}

// ShadowBuilder generates shadow rings into a reused buffer from a
// precomputed unit circle. A builder is not safe for concurrent use; give
// each goroutine its own.
type ShadowBuilder struct {
	unit []r2.Vec
	buf  Polygon
}

// NewShadowBuilder prepares a builder producing rings of the given size.
func NewShadowBuilder(vertices int) *ShadowBuilder {
	if vertices < MinVertices {
		vertices = MinVertices
	}
	unit := make([]r2.Vec, vertices)
	for k := range unit {
		sin, cos := math.Sincos(2 * math.Pi * float64(k) / float64(vertices))
		unit[k] = r2.Vec{X: cos, Y: sin}
	}
	return &ShadowBuilder{
		unit: unit,
		buf:  make(Polygon, vertices),
	}
}

// Vertices returns the ring size.
func (b *ShadowBuilder) Vertices() int {
	return len(b.unit)
}

// Build scales the unit circle by the shadow's semi-axes about its center and
// rotates it into place. The returned polygon aliases the builder's buffer and
// is only valid until the next call to Build.
func (b *ShadowBuilder) Build(s Shadow) Polygon {
	rot := r2.NewRotation(s.Rotation, s.Center)
	for k, u := range b.unit {
		p := r2.Vec{
			X: s.Center.X + s.SemiMajor*u.X,
			Y: s.Center.Y + s.SemiMinor*u.Y,
		}
		b.buf[k] = rot.Rotate(p)
	}
	return b.buf
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
