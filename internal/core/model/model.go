// Package model defines core domain types shared across the service.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/paulmach/orb"
)

type ViewportBounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// String representation matching the upstream query format
func (b ViewportBounds) String() string {
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", b.MinLat, b.MinLng, b.MaxLat, b.MaxLng)
}

func (b ViewportBounds) Center() (lat, lng float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLng + b.MaxLng) / 2
}

type GeometryType string

const (
	GeometryFault           GeometryType = "fault"
	GeometryThrustFault     GeometryType = "thrust_fault"
	GeometryNormalFault     GeometryType = "normal_fault"
	GeometryStrikeSlipFault GeometryType = "strike_slip_fault"
	GeometryAnticline       GeometryType = "anticline"
	GeometrySyncline        GeometryType = "syncline"
	GeometryContact         GeometryType = "contact"
)

// FeatureID accepts both JSON strings and numbers.
type FeatureID string

func (id *FeatureID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("feature id: %w", err)
		}
		*id = FeatureID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("feature id: %w", err)
	}
	*id = FeatureID(n.String())
	return nil
}

// GeologicalFeature is stored and returned verbatim by the cache. A decoded
// feature keeps the exact bytes it was decoded from and encodes back to them;
// its typed fields are read-only views filled on a best-effort basis, so a
// member whose shape differs from the view never fails the decode.
// Values built in code (no source bytes) encode from the fields plus Extra.
type GeologicalFeature struct {
	ID          FeatureID                  `json:"id"`
	Type        GeometryType               `json:"type"`
	Coordinates json.RawMessage            `json:"coordinates,omitempty"`
	Color       string                     `json:"color,omitempty"`
	Weight      float64                    `json:"weight,omitempty"`
	Properties  map[string]any             `json:"properties,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`

	raw json.RawMessage
}

var featureFields = []string{"id", "type", "coordinates", "color", "weight", "properties"}

func (f *GeologicalFeature) UnmarshalJSON(b []byte) error {
	members, err := decodeMembers(b)
	if err != nil {
		return fmt.Errorf("geological feature: %w", err)
	}
	out := GeologicalFeature{raw: bytes.Clone(b)}
	lenient(members["id"], &out.ID)
	lenient(members["type"], &out.Type)
	if c, ok := members["coordinates"]; ok {
		out.Coordinates = bytes.Clone(c)
	}
	lenient(members["color"], &out.Color)
	lenient(members["weight"], &out.Weight)
	lenient(members["properties"], &out.Properties)
	out.Extra = extraMembers(members, featureFields)
	*f = out
	return nil
}

func (f GeologicalFeature) MarshalJSON() ([]byte, error) {
	if f.raw != nil {
		return f.raw, nil
	}
	type plain GeologicalFeature
	b, err := json.Marshal(plain(f))
	if err != nil {
		return nil, fmt.Errorf("geological feature: %w", err)
	}
	return mergeExtra(b, f.Extra)
}

// Points decodes Coordinates as a polyline. Both [lng, lat, ...] arrays and
// {"latitude","longitude"} or {"lat","lng"} objects are accepted; values past
// the second in an array are ignored by the view but kept in the payload.
func (f GeologicalFeature) Points() ([]orb.Point, error) {
	if len(f.Coordinates) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(f.Coordinates, &items); err != nil {
		return nil, fmt.Errorf("coordinates: %w", err)
	}
	pts := make([]orb.Point, 0, len(items))
	for i, it := range items {
		p, err := decodePoint(it)
		if err != nil {
			return nil, fmt.Errorf("coordinates[%d]: %w", i, err)
		}
		pts = append(pts, p)
	}
	return pts, nil
}

func decodePoint(b json.RawMessage) (orb.Point, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var o struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
			Lat       *float64 `json:"lat"`
			Lng       *float64 `json:"lng"`
		}
		if err := json.Unmarshal(b, &o); err != nil {
			return orb.Point{}, err
		}
		switch {
		case o.Latitude != nil && o.Longitude != nil:
			return orb.Point{*o.Longitude, *o.Latitude}, nil
		case o.Lat != nil && o.Lng != nil:
			return orb.Point{*o.Lng, *o.Lat}, nil
		}
		return orb.Point{}, errors.New("object point without latitude/longitude")
	}
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return orb.Point{}, err
	}
	if len(v) < 2 {
		return orb.Point{}, fmt.Errorf("point has %d values", len(v))
	}
	return orb.Point{v[0], v[1]}, nil
}

// FormationSummary follows the same verbatim rules as GeologicalFeature.
type FormationSummary struct {
	Name        string                     `json:"name"`
	Age         string                     `json:"age,omitempty"`
	Lithology   string                     `json:"lithology,omitempty"`
	Environment string                     `json:"environment,omitempty"`
	Source      string                     `json:"source,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`

	raw json.RawMessage
}

var formationFields = []string{"name", "age", "lithology", "environment", "source"}

func (s *FormationSummary) UnmarshalJSON(b []byte) error {
	members, err := decodeMembers(b)
	if err != nil {
		return fmt.Errorf("formation summary: %w", err)
	}
	out := FormationSummary{raw: bytes.Clone(b)}
	lenient(members["name"], &out.Name)
	lenient(members["age"], &out.Age)
	lenient(members["lithology"], &out.Lithology)
	lenient(members["environment"], &out.Environment)
	lenient(members["source"], &out.Source)
	out.Extra = extraMembers(members, formationFields)
	*s = out
	return nil
}

func (s FormationSummary) MarshalJSON() ([]byte, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	type plain FormationSummary
	b, err := json.Marshal(plain(s))
	if err != nil {
		return nil, fmt.Errorf("formation summary: %w", err)
	}
	return mergeExtra(b, s.Extra)
}

type FeatureSet struct {
	Features   []GeologicalFeature `json:"features"`
	Formations []FormationSummary  `json:"formations"`
}

// Normalize replaces missing sequences with empty ones.
func (fs FeatureSet) Normalize() FeatureSet {
	if fs.Features == nil {
		fs.Features = []GeologicalFeature{}
	}
	if fs.Formations == nil {
		fs.Formations = []FormationSummary{}
	}
	return fs
}

func EmptyFeatureSet() FeatureSet {
	return FeatureSet{}.Normalize()
}

// decodes b as a JSON object; null decodes to no members
func decodeMembers(b []byte) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return all, nil
}

// fills dst from b when the shapes agree; mismatches leave dst zero
func lenient(b json.RawMessage, dst any) {
	if len(b) == 0 {
		return
	}
	_ = json.Unmarshal(b, dst)
}

// copies the members whose names are not in known
func extraMembers(all map[string]json.RawMessage, known []string) map[string]json.RawMessage {
	var extra map[string]json.RawMessage
	for k, v := range all {
		if slices.Contains(known, k) {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = bytes.Clone(v)
	}
	return extra
}

// adds extra members to an encoded object; known members win on conflict
func mergeExtra(b []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return b, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	for k, v := range extra {
		if _, ok := all[k]; ok {
			continue
		}
		all[k] = v
	}
	out, err := json.Marshal(all)
	if err != nil {
		return nil, fmt.Errorf("encode members: %w", err)
	}
	return out, nil
}

// FormatCoord formats a coordinate the way the upstream expects it.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
