package geometry

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Transform2D is a rigid transform between two planar coordinate frames. The
// rotation is always stored normalized into (-pi, pi].
type Transform2D struct {
	rotation    float64
	translation Vector2D
}

// NewTransform2D returns the transform with the given translation and rotation
// in radians.
func NewTransform2D(translation Vector2D, radians float64) Transform2D {
	return Transform2D{rotation: NormalizeAngle(radians), translation: translation}
}

// NewRotation returns a pure rotation in radians.
func NewRotation(radians float64) Transform2D {
	return NewTransform2D(Vector2D{}, radians)
}

// NewTranslation returns a pure translation.
func NewTranslation(translation Vector2D) Transform2D {
	return Transform2D{translation: translation}
}

// Identity returns the identity transform.
func Identity() Transform2D {
	return Transform2D{}
}

// Rotation returns the rotation in radians, normalized into (-pi, pi].
func (tf Transform2D) Rotation() float64 {
	return tf.rotation
}

// Translation returns the translation component.
func (tf Transform2D) Translation() Vector2D {
	return tf.translation
}

// TransformPoint maps a point in the transform's local frame into the frame
// the transform is relative to.
func (tf Transform2D) TransformPoint(p Point2D) Point2D {
	sin, cos := math.Sincos(tf.rotation)
	return Point2D{
		X: p.X*cos - p.Y*sin + tf.translation.X,
		Y: p.X*sin + p.Y*cos + tf.translation.Y,
	}
}

// TransformVector maps a free displacement in the transform's local frame into
// the frame the transform is relative to. Vectors rotate but do not translate.
func (tf Transform2D) TransformVector(v Vector2D) Vector2D {
	sin, cos := math.Sincos(tf.rotation)
	return Vector2D{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// TransformTwist maps a twist in the transform's local frame into the frame
// the transform is relative to, via the SE(2) adjoint. The translation
// contributes a moment arm to the linear part.
func (tf Transform2D) TransformTwist(tw Twist2D) Twist2D {
	sin, cos := math.Sincos(tf.rotation)
	return Twist2D{
		Omega: tw.Omega,
		X:     tw.Omega*tf.translation.Y + tw.X*cos - tw.Y*sin,
		Y:     -tw.Omega*tf.translation.X + tw.X*sin + tw.Y*cos,
	}
}

// Inverse returns the transform mapping in the opposite direction, so that
// tf.Mul(tf.Inverse()) is the identity to floating tolerance.
func (tf Transform2D) Inverse() Transform2D {
	sin, cos := math.Sincos(tf.rotation)
	return NewTransform2D(Vector2D{
		X: -tf.translation.X*cos - tf.translation.Y*sin,
		Y: -tf.translation.Y*cos + tf.translation.X*sin,
	}, -tf.rotation)
}

// Mul composes two transforms. Applying the result equals applying rhs first,
// then tf.
func (tf Transform2D) Mul(rhs Transform2D) Transform2D {
	rotated := tf.TransformVector(rhs.translation)
	return NewTransform2D(tf.translation.Add(rotated), tf.rotation+rhs.rotation)
}

// IntegrateTwist returns the rigid transform obtained by following tw for one
// unit of time: a straight-line displacement when the angular rate is
// (numerically) zero, an arc otherwise.
func IntegrateTwist(tw Twist2D) Transform2D {
	if AlmostEqual(tw.Omega, 0.0) {
		return NewTranslation(Vector2D{X: tw.X, Y: tw.Y})
	}
	sin, cos := math.Sincos(tw.Omega)
	return NewTransform2D(Vector2D{
		X: (tw.X*sin + tw.Y*(cos-1.0)) / tw.Omega,
		Y: (tw.Y*sin + tw.X*(1.0-cos)) / tw.Omega,
	}, tw.Omega)
}

// String formats tf with its rotation in degrees, e.g. "deg: 90 x: 1.2 y: 3".
func (tf Transform2D) String() string {
	return fmt.Sprintf("deg: %v x: %v y: %v", RadToDeg(tf.rotation), tf.translation.X, tf.translation.Y)
}

// ParseTransform2D parses both the labeled "deg: D x: X y: Y" form and the
// bare "D X Y" triplet. Rotation is given in degrees in either form.
func ParseTransform2D(s string) (Transform2D, error) {
	fields := strings.Fields(s)

	if len(fields) > 0 && fields[0] == "deg:" {
		if len(fields) != 6 || fields[2] != "x:" || fields[4] != "y:" {
			return Transform2D{}, errors.Errorf("malformed labeled transform %q", s)
		}
		fields = []string{fields[1], fields[3], fields[5]}
	}

	if len(fields) != 3 {
		return Transform2D{}, errors.Errorf("expected 3 fields in transform %q, got %d", s, len(fields))
	}

	parsed := make([]float64, 0, 3)
	for _, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Transform2D{}, errors.Wrapf(err, "could not parse %q as a float", field)
		}
		parsed = append(parsed, value)
	}
	return NewTransform2D(Vector2D{X: parsed[1], Y: parsed[2]}, DegToRad(parsed[0])), nil
}
