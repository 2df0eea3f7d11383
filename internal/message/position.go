package message

import (
	"encoding/json"
	"math"
)

// ReferencePosition is a WGS84 position in ETSI fixed-point scaling:
// latitude/longitude in 0.1 microdegree (degree × 10⁷), altitude in
// centimetres. Absent fields decode to their unknown sentinels.
type ReferencePosition struct {
	Latitude  int64 `json:"latitude"`
	Longitude int64 `json:"longitude"`
	Altitude  int64 `json:"altitude"`
}

// UnknownPosition returns a position with every field at its unknown
// sentinel, the starting point for builders.
func UnknownPosition() ReferencePosition {
	return ReferencePosition{
		Latitude:  UnknownLatitude,
		Longitude: UnknownLongitude,
		Altitude:  UnknownAltitude,
	}
}

// PositionFromDegree converts plain degrees/metres into ETSI scaling.
func PositionFromDegree(latDeg, lngDeg, altMeter float64) ReferencePosition {
	return ReferencePosition{
		Latitude:  int64(math.Round(latDeg * 1e7)),
		Longitude: int64(math.Round(lngDeg * 1e7)),
		Altitude:  int64(math.Round(altMeter * 100)),
	}
}

func (p *ReferencePosition) UnmarshalJSON(b []byte) error {
	type alias ReferencePosition
	a := alias(UnknownPosition())
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*p = ReferencePosition(a)
	return nil
}

// LatitudeDegree returns the latitude in degrees, NaN when unknown.
func (p ReferencePosition) LatitudeDegree() float64 {
	if p.Latitude == UnknownLatitude {
		return math.NaN()
	}
	return float64(p.Latitude) / 1e7
}

// LongitudeDegree returns the longitude in degrees, NaN when unknown.
func (p ReferencePosition) LongitudeDegree() float64 {
	if p.Longitude == UnknownLongitude {
		return math.NaN()
	}
	return float64(p.Longitude) / 1e7
}

// AltitudeMeter returns the altitude in metres, NaN when unknown.
func (p ReferencePosition) AltitudeMeter() float64 {
	if p.Altitude == UnknownAltitude {
		return math.NaN()
	}
	return float64(p.Altitude) / 100
}

// Known reports whether both horizontal coordinates carry real values.
func (p ReferencePosition) Known() bool {
	return p.Latitude != UnknownLatitude && p.Longitude != UnknownLongitude
}

func (p ReferencePosition) validate(v Validation) error {
	if err := v.inRange("latitude", p.Latitude, -900000000, UnknownLatitude); err != nil {
		return err
	}
	if err := v.inRange("longitude", p.Longitude, -1800000000, UnknownLongitude); err != nil {
		return err
	}
	return v.inRange("altitude", p.Altitude, -100000, UnknownAltitude)
}

// ConfidenceEllipse is the horizontal position accuracy ellipse, axes in
// centimetres, orientation in 0.1 degree.
type ConfidenceEllipse struct {
	SemiMajorConfidence  int64 `json:"semi_major_confidence"`
	SemiMinorConfidence  int64 `json:"semi_minor_confidence"`
	SemiMajorOrientation int64 `json:"semi_major_orientation"`
}

func (c *ConfidenceEllipse) UnmarshalJSON(b []byte) error {
	type alias ConfidenceEllipse
	a := alias{
		SemiMajorConfidence:  UnknownSemiAxisLength,
		SemiMinorConfidence:  UnknownSemiAxisLength,
		SemiMajorOrientation: UnknownHeading,
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*c = ConfidenceEllipse(a)
	return nil
}

func (c ConfidenceEllipse) validate(v Validation) error {
	if err := v.inRange("semi_major_confidence", c.SemiMajorConfidence, 0, UnknownSemiAxisLength); err != nil {
		return err
	}
	if err := v.inRange("semi_minor_confidence", c.SemiMinorConfidence, 0, UnknownSemiAxisLength); err != nil {
		return err
	}
	return v.inRange("semi_major_orientation", c.SemiMajorOrientation, 0, UnknownHeading)
}

// PositionConfidence couples the horizontal ellipse with the altitude
// confidence class (0..15, 15 unavailable).
type PositionConfidence struct {
	PositionConfidenceEllipse ConfidenceEllipse `json:"position_confidence_ellipse"`
	Altitude                  int64             `json:"altitude"`
}

func NewPositionConfidence() *PositionConfidence {
	return &PositionConfidence{
		PositionConfidenceEllipse: ConfidenceEllipse{
			SemiMajorConfidence:  UnknownSemiAxisLength,
			SemiMinorConfidence:  UnknownSemiAxisLength,
			SemiMajorOrientation: UnknownHeading,
		},
		Altitude: UnknownAltitudeConfidence,
	}
}

func (c *PositionConfidence) UnmarshalJSON(b []byte) error {
	type alias PositionConfidence
	a := alias(*NewPositionConfidence())
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*c = PositionConfidence(a)
	return nil
}

func (c *PositionConfidence) validate(v Validation) error {
	if c == nil {
		return nil
	}
	if err := c.PositionConfidenceEllipse.validate(v); err != nil {
		return err
	}
	return v.inRange("altitude confidence", c.Altitude, 0, UnknownAltitudeConfidence)
}

// DeltaPosition is a path-history offset from the previous point, in the
// same scaling as ReferencePosition.
type DeltaPosition struct {
	DeltaLatitude  int64 `json:"delta_latitude"`
	DeltaLongitude int64 `json:"delta_longitude"`
	DeltaAltitude  int64 `json:"delta_altitude"`
}

// PathPoint is one entry of a path history: a position offset plus the
// travel time from the previous point in 10 ms units (1..65535).
type PathPoint struct {
	PathPosition  DeltaPosition `json:"path_position"`
	PathDeltaTime int64         `json:"path_delta_time"`
}

func validatePathHistory(v Validation, points []PathPoint) error {
	if err := v.inRange("path_history length", int64(len(points)), 0, MaxPathPoints); err != nil {
		return err
	}
	for _, p := range points {
		if err := v.inRange("path_delta_time", p.PathDeltaTime, 1, 65535); err != nil {
			return err
		}
	}
	return nil
}
