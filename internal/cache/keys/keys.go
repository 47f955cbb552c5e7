// Package keys derives stable identifiers for viewport bounds.
package keys

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
)

// Normalize renders bounds at the precision the upstream sees, so two
// viewports that produce the same outbound query share a key.
func Normalize(b model.ViewportBounds) string {
	var sb strings.Builder
	sb.Grow(48)
	for i, v := range [...]float64{b.MinLat, b.MinLng, b.MaxLat, b.MaxLng} {
		if i > 0 {
			sb.WriteByte(',')
		}
		s := model.FormatCoord(v)
		if s == "-0.0000" {
			s = "0.0000"
		}
		sb.WriteString(s)
	}
	return sb.String()
}

func BoundsKey(b model.ViewportBounds) string {
	norm := Normalize(b)
	return fmt.Sprintf("vp:%s:h=%016x", norm, xxhash.Sum64String(norm))
}

// RateWindowKey names the limiter counter for a scope and window start.
func RateWindowKey(scope string, windowStart int64) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	return fmt.Sprintf("ratelimit:%s:%d", sanitize(scope), windowStart)
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
