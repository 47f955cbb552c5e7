// Package bounds implements rectangle math over viewport bounds.
package bounds

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
)

var ErrInvalidBounds = errors.New("invalid viewport bounds")

// Validate fails when a value is not finite or min exceeds max on either axis.
func Validate(b model.ViewportBounds) error {
	for _, v := range [...]float64{b.MinLat, b.MinLng, b.MaxLat, b.MaxLng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate in %s", ErrInvalidBounds, b)
		}
	}
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("%w: minLat %.6f > maxLat %.6f", ErrInvalidBounds, b.MinLat, b.MaxLat)
	}
	if b.MinLng > b.MaxLng {
		return fmt.Errorf("%w: minLng %.6f > maxLng %.6f", ErrInvalidBounds, b.MinLng, b.MaxLng)
	}
	return nil
}

// ToOrb maps bounds onto an orb.Bound (x=lng, y=lat).
func ToOrb(b model.ViewportBounds) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLng, b.MinLat},
		Max: orb.Point{b.MaxLng, b.MaxLat},
	}
}

func FromOrb(b orb.Bound) model.ViewportBounds {
	return model.ViewportBounds{
		MinLat: b.Min.Lat(),
		MinLng: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLng: b.Max.Lon(),
	}
}

// Contains reports whether inner lies within outer. Edges are inclusive.
func Contains(outer, inner model.ViewportBounds) bool {
	o := ToOrb(outer)
	i := ToOrb(inner)
	return o.Contains(i.Min) && o.Contains(i.Max)
}

// Pad grows b outward by fraction of its height and width on each side.
// Zero-area bounds stay zero-sized.
func Pad(b model.ViewportBounds, fraction float64) model.ViewportBounds {
	dLat := (b.MaxLat - b.MinLat) * fraction
	dLng := (b.MaxLng - b.MinLng) * fraction
	o := ToOrb(b)
	o.Min = orb.Point{o.Min.Lon() - dLng, o.Min.Lat() - dLat}
	o.Max = orb.Point{o.Max.Lon() + dLng, o.Max.Lat() + dLat}
	return FromOrb(o)
}
