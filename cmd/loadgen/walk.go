package main

import (
	"math"
	"math/rand"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
)

type hotspot struct {
	Name     string
	Lat, Lng float64
}

var hotspots = []hotspot{
	{"san-andreas", 35.1200, -119.6500},
	{"yosemite", 37.7456, -119.5936},
	{"grand-canyon", 36.1069, -112.1129},
	{"yellowstone", 44.4280, -110.5885},
	{"appalachians", 37.5000, -80.0000},
}

type move int

const (
	movePan move = iota
	moveZoomIn
	moveZoomOut
	moveJump
)

func (m move) String() string {
	switch m {
	case movePan:
		return "pan"
	case moveZoomIn:
		return "zoom_in"
	case moveZoomOut:
		return "zoom_out"
	default:
		return "jump"
	}
}

// walker simulates one map user: mostly small pans, some zooms, and an
// occasional jump to another hotspot picked with a Zipf skew.
type walker struct {
	r        *rand.Rand
	zipf     *rand.Zipf
	lat, lng float64
	h, w     float64
	panFrac  float64
	jumpProb float64
	zoomProb float64
}

func newWalker(r *rand.Rand, zipfS, zipfV, span, panFrac, jumpProb, zoomProb float64) *walker {
	wk := &walker{
		r:        r,
		zipf:     rand.NewZipf(r, zipfS, zipfV, uint64(len(hotspots)-1)),
		h:        span,
		w:        span,
		panFrac:  panFrac,
		jumpProb: jumpProb,
		zoomProb: zoomProb,
	}
	wk.jumpTo(wk.pick())
	return wk
}

func (wk *walker) pick() hotspot {
	return hotspots[int(wk.zipf.Uint64())%len(hotspots)]
}

func (wk *walker) jumpTo(h hotspot) {
	wk.lat, wk.lng = h.Lat, h.Lng
}

// step mutates the viewport and reports what kind of move it made.
func (wk *walker) step() move {
	x := wk.r.Float64()
	switch {
	case x < wk.jumpProb:
		wk.jumpTo(wk.pick())
		return moveJump
	case x < wk.jumpProb+wk.zoomProb:
		if wk.r.Intn(2) == 0 && wk.h > 0.01 {
			wk.h, wk.w = wk.h*0.8, wk.w*0.8
			return moveZoomIn
		}
		if wk.h < 20 {
			wk.h, wk.w = wk.h*1.25, wk.w*1.25
		}
		return moveZoomOut
	default:
		wk.lat += (wk.r.Float64()*2 - 1) * wk.panFrac * wk.h
		wk.lng += (wk.r.Float64()*2 - 1) * wk.panFrac * wk.w
		return movePan
	}
}

func (wk *walker) bounds() model.ViewportBounds {
	b := model.ViewportBounds{
		MinLat: wk.lat - wk.h/2,
		MinLng: wk.lng - wk.w/2,
		MaxLat: wk.lat + wk.h/2,
		MaxLng: wk.lng + wk.w/2,
	}
	b.MinLat = math.Max(b.MinLat, -90)
	b.MaxLat = math.Min(b.MaxLat, 90)
	b.MinLng = math.Max(b.MinLng, -180)
	b.MaxLng = math.Min(b.MaxLng, 180)
	if b.MinLat > b.MaxLat {
		b.MinLat = b.MaxLat
	}
	if b.MinLng > b.MaxLng {
		b.MinLng = b.MaxLng
	}
	return b
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
