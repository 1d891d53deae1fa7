// Package geometry implements the planar vector, point, and twist algebra the
// estimator is built on, along with the textual forms used for logging and
// persistence.
package geometry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Tolerance bounds every near-equality decision in this module, including the
// straight-line vs. arc branch in twist integration. Keeping one constant
// avoids discontinuities where two callers disagree about "zero".
const Tolerance = 1e-12

// Vector2D is a free displacement in the plane.
type Vector2D struct {
	X float64
	Y float64
}

// Point2D is an affine position in the plane.
type Point2D struct {
	X float64
	Y float64
}

// Twist2D is a planar body velocity: angular rate plus linear x/y in the body
// frame.
type Twist2D struct {
	Omega float64
	X     float64
	Y     float64
}

// AlmostEqual reports whether a and b are within Tolerance of each other.
func AlmostEqual(a, b float64) bool {
	return math.Abs(a-b) < Tolerance
}

// NormalizeAngle wraps rad into (-pi, pi]. Both pi and -pi map to themselves.
func NormalizeAngle(rad float64) float64 {
	for rad > math.Pi {
		rad -= 2.0 * math.Pi
	}
	for rad < -math.Pi {
		rad += 2.0 * math.Pi
	}
	return rad
}

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Add returns the vector sum of v and rhs.
func (v Vector2D) Add(rhs Vector2D) Vector2D {
	return Vector2D{X: v.X + rhs.X, Y: v.Y + rhs.Y}
}

// Sub returns the vector difference of v and rhs.
func (v Vector2D) Sub(rhs Vector2D) Vector2D {
	return Vector2D{X: v.X - rhs.X, Y: v.Y - rhs.Y}
}

// Scale returns v scaled by s.
func (v Vector2D) Scale(s float64) Vector2D {
	return Vector2D{X: v.X * s, Y: v.Y * s}
}

// Magnitude returns the euclidean length of v.
func (v Vector2D) Magnitude() float64 {
	return math.Hypot(v.X, v.Y)
}

// Unit returns the unit vector pointing along v.
func (v Vector2D) Unit() (Vector2D, error) {
	mag := v.Magnitude()
	if AlmostEqual(mag, 0.0) {
		return Vector2D{}, errors.New("cannot normalize a zero-magnitude vector")
	}
	return Vector2D{X: v.X / mag, Y: v.Y / mag}, nil
}

// Dot returns the dot product of lhs and rhs.
func Dot(lhs, rhs Vector2D) float64 {
	return lhs.X*rhs.X + lhs.Y*rhs.Y
}

// AngleBetween returns the angle between lhs and rhs in radians.
func AngleBetween(lhs, rhs Vector2D) (float64, error) {
	magLHS := lhs.Magnitude()
	magRHS := rhs.Magnitude()
	if AlmostEqual(magLHS, 0.0) || AlmostEqual(magRHS, 0.0) {
		return 0, errors.New("cannot take the angle of a zero-magnitude vector")
	}
	return math.Acos(Dot(lhs, rhs) / (magLHS * magRHS)), nil
}

// Add returns the point displaced from p by disp.
func (p Point2D) Add(disp Vector2D) Point2D {
	return Point2D{X: p.X + disp.X, Y: p.Y + disp.Y}
}

// Sub returns the displacement from tail to p.
func (p Point2D) Sub(tail Point2D) Vector2D {
	return Vector2D{X: p.X - tail.X, Y: p.Y - tail.Y}
}

// String formats v as "[x y]".
func (v Vector2D) String() string {
	return fmt.Sprintf("[%v %v]", v.X, v.Y)
}

// String formats p as "[x y]".
func (p Point2D) String() string {
	return fmt.Sprintf("[%v %v]", p.X, p.Y)
}

// String formats tw as "[omega x y]".
func (tw Twist2D) String() string {
	return fmt.Sprintf("[%v %v %v]", tw.Omega, tw.X, tw.Y)
}

// parseFloatFields strips an optional bracket pair from s and parses exactly
// want space-separated floats.
func parseFloatFields(s string, want int) ([]float64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") {
		if !strings.HasSuffix(trimmed, "]") {
			return nil, errors.Errorf("unbalanced brackets in %q", s)
		}
		trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
	}

	fields := strings.Fields(trimmed)
	if len(fields) != want {
		return nil, errors.Errorf("expected %d fields in %q, got %d", want, s, len(fields))
	}

	parsed := make([]float64, 0, want)
	for _, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse %q as a float", field)
		}
		parsed = append(parsed, value)
	}
	return parsed, nil
}

// ParseVector2D parses both the bracketed "[x y]" form and the bare "x y" form.
func ParseVector2D(s string) (Vector2D, error) {
	fields, err := parseFloatFields(s, 2)
	if err != nil {
		return Vector2D{}, err
	}
	return Vector2D{X: fields[0], Y: fields[1]}, nil
}

// ParsePoint2D parses both the bracketed "[x y]" form and the bare "x y" form.
func ParsePoint2D(s string) (Point2D, error) {
	fields, err := parseFloatFields(s, 2)
	if err != nil {
		return Point2D{}, err
	}
	return Point2D{X: fields[0], Y: fields[1]}, nil
}

// ParseTwist2D parses both the bracketed "[omega x y]" form and the bare
// "omega x y" form.
func ParseTwist2D(s string) (Twist2D, error) {
	fields, err := parseFloatFields(s, 3)
	if err != nil {
		return Twist2D{}, err
	}
	return Twist2D{Omega: fields[0], X: fields[1], Y: fields[2]}, nil
}
