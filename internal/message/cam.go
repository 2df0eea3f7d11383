package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// CAM is a Cooperative Awareness Message body: the periodic presence
// beacon of an ITS station (ETSI EN 302 637-2 semantics, JSON rendering).
type CAM struct {
	ProtocolVersion     int64                   `json:"protocol_version"`
	StationID           int64                   `json:"station_id"`
	GenerationDeltaTime int64                   `json:"generation_delta_time"`
	BasicContainer      BasicContainer          `json:"basic_container"`
	HighFreqContainer   *HighFrequencyContainer `json:"high_frequency_container,omitempty"`
	LowFreqContainer    *LowFrequencyContainer  `json:"low_frequency_container,omitempty"`
}

func (c *CAM) MessageType() string { return TypeCAM }

// BasicContainer carries the station type and reference position.
type BasicContainer struct {
	StationType       int64               `json:"station_type"`
	ReferencePosition ReferencePosition   `json:"reference_position"`
	Confidence        *PositionConfidence `json:"confidence,omitempty"`
}

func (b *BasicContainer) UnmarshalJSON(data []byte) error {
	type alias BasicContainer
	a := alias{ReferencePosition: UnknownPosition()}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = BasicContainer(a)
	return nil
}

// HighFrequencyContainer carries the fast-changing kinematic state.
// Scalings: heading 0.1°, speed 0.01 m/s, length/width 0.1 m,
// accelerations 0.1 m/s², yaw rate 0.01 °/s. Absent fields decode to
// their unknown sentinels.
type HighFrequencyContainer struct {
	Heading                  int64                    `json:"heading"`
	Speed                    int64                    `json:"speed"`
	DriveDirection           int64                    `json:"drive_direction"`
	VehicleLength            int64                    `json:"vehicle_length"`
	VehicleWidth             int64                    `json:"vehicle_width"`
	LongitudinalAcceleration int64                    `json:"longitudinal_acceleration"`
	LateralAcceleration      int64                    `json:"lateral_acceleration"`
	VerticalAcceleration     int64                    `json:"vertical_acceleration"`
	YawRate                  int64                    `json:"yaw_rate"`
	Curvature                int64                    `json:"curvature"`
	LanePosition             *int64                   `json:"lane_position,omitempty"`
	Confidence               *HighFrequencyConfidence `json:"confidence,omitempty"`
}

func defaultHighFrequencyContainer() HighFrequencyContainer {
	return HighFrequencyContainer{
		Heading:                  UnknownHeading,
		Speed:                    UnknownSpeed,
		DriveDirection:           UnknownDriveDirection,
		VehicleLength:            UnknownVehicleLength,
		VehicleWidth:             UnknownVehicleWidth,
		LongitudinalAcceleration: UnknownAcceleration,
		LateralAcceleration:      UnknownAcceleration,
		VerticalAcceleration:     UnknownAcceleration,
		YawRate:                  UnknownYawRate,
		Curvature:                UnknownCurvature,
	}
}

func (h *HighFrequencyContainer) UnmarshalJSON(b []byte) error {
	type alias HighFrequencyContainer
	a := alias(defaultHighFrequencyContainer())
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*h = HighFrequencyContainer(a)
	return nil
}

// HighFrequencyConfidence holds the per-field accuracy classes of the
// high frequency container.
type HighFrequencyConfidence struct {
	Heading                  int64 `json:"heading"`
	Speed                    int64 `json:"speed"`
	VehicleLength            int64 `json:"vehicle_length"`
	LongitudinalAcceleration int64 `json:"longitudinal_acceleration"`
	YawRate                  int64 `json:"yaw_rate"`
	Curvature                int64 `json:"curvature"`
}

func (c *HighFrequencyConfidence) UnmarshalJSON(b []byte) error {
	type alias HighFrequencyConfidence
	a := alias{
		Heading:                  UnknownHeadingConfidence,
		Speed:                    UnknownSpeedConfidence,
		VehicleLength:            4, // unavailable
		LongitudinalAcceleration: 102,
		YawRate:                  UnknownYawRateConfidence,
		Curvature:                UnknownCurvatureConfidence,
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*c = HighFrequencyConfidence(a)
	return nil
}

// LowFrequencyContainer carries the slow-changing vehicle state. The
// path history is ordered most recent first and bounded to MaxPathPoints.
type LowFrequencyContainer struct {
	VehicleRole    int64       `json:"vehicle_role"`
	ExteriorLights string      `json:"exterior_lights"`
	PathHistory    []PathPoint `json:"path_history"`
}

// HeadingDegree returns the heading in degrees, NaN when unknown or when
// no high frequency container is present.
func (c *CAM) HeadingDegree() float64 {
	if c.HighFreqContainer == nil || c.HighFreqContainer.Heading == UnknownHeading {
		return math.NaN()
	}
	return float64(c.HighFreqContainer.Heading) / 10
}

// SpeedMs returns the speed in m/s, NaN when unknown.
func (c *CAM) SpeedMs() float64 {
	if c.HighFreqContainer == nil || c.HighFreqContainer.Speed == UnknownSpeed {
		return math.NaN()
	}
	return float64(c.HighFreqContainer.Speed) / 100
}

// Position returns the station's reference position.
func (c *CAM) Position() ReferencePosition {
	return c.BasicContainer.ReferencePosition
}

func (c *CAM) validate(v Validation) error {
	if err := v.inRange("protocol_version", c.ProtocolVersion, 0, 255); err != nil {
		return err
	}
	if err := v.inRange("station_id", c.StationID, 0, MaxStationID); err != nil {
		return err
	}
	if err := v.inRange("generation_delta_time", c.GenerationDeltaTime, 0, 65535); err != nil {
		return err
	}
	if err := v.inRange("station_type", c.BasicContainer.StationType, 0, 255); err != nil {
		return err
	}
	if err := c.BasicContainer.ReferencePosition.validate(v); err != nil {
		return err
	}
	if err := c.BasicContainer.Confidence.validate(v); err != nil {
		return err
	}
	if h := c.HighFreqContainer; h != nil {
		if err := v.inRange("heading", h.Heading, 0, UnknownHeading); err != nil {
			return err
		}
		if err := v.inRange("speed", h.Speed, 0, UnknownSpeed); err != nil {
			return err
		}
		if err := v.inRange("drive_direction", h.DriveDirection, 0, UnknownDriveDirection); err != nil {
			return err
		}
		if err := v.inRange("vehicle_length", h.VehicleLength, 1, UnknownVehicleLength); err != nil {
			return err
		}
		if err := v.inRange("vehicle_width", h.VehicleWidth, 1, UnknownVehicleWidth); err != nil {
			return err
		}
		if err := v.inRange("longitudinal_acceleration", h.LongitudinalAcceleration, -160, UnknownAcceleration); err != nil {
			return err
		}
		if err := v.inRange("lateral_acceleration", h.LateralAcceleration, -160, UnknownAcceleration); err != nil {
			return err
		}
		if err := v.inRange("vertical_acceleration", h.VerticalAcceleration, -160, UnknownAcceleration); err != nil {
			return err
		}
		if err := v.inRange("yaw_rate", h.YawRate, -32766, UnknownYawRate); err != nil {
			return err
		}
		if err := v.inRange("curvature", h.Curvature, -1023, UnknownCurvature); err != nil {
			return err
		}
		if err := v.inRangeOpt("lane_position", h.LanePosition, -1, 14); err != nil {
			return err
		}
		if cf := h.Confidence; cf != nil {
			if err := v.inRange("heading confidence", cf.Heading, 1, UnknownHeadingConfidence); err != nil {
				return err
			}
			if err := v.inRange("speed confidence", cf.Speed, 1, UnknownSpeedConfidence); err != nil {
				return err
			}
			if err := v.inRange("vehicle_length confidence", cf.VehicleLength, 0, 4); err != nil {
				return err
			}
			if err := v.inRange("longitudinal_acceleration confidence", cf.LongitudinalAcceleration, 0, 102); err != nil {
				return err
			}
			if err := v.inRange("yaw_rate confidence", cf.YawRate, 0, UnknownYawRateConfidence); err != nil {
				return err
			}
			if err := v.inRange("curvature confidence", cf.Curvature, 0, UnknownCurvatureConfidence); err != nil {
				return err
			}
		}
	}
	if l := c.LowFreqContainer; l != nil {
		if err := v.inRange("vehicle_role", l.VehicleRole, 0, 15); err != nil {
			return err
		}
		if err := validatePathHistory(v, l.PathHistory); err != nil {
			return err
		}
	}
	return nil
}

type camProbe struct {
	ProtocolVersion *int64          `json:"protocol_version"`
	StationID       *int64          `json:"station_id"`
	BasicContainer  json.RawMessage `json:"basic_container"`
}

// DecodeCAM parses a CAM body. Mandatory fields (protocol_version,
// station_id, basic_container) must be present regardless of validation
// mode; optional fields default to their unknown sentinels.
func DecodeCAM(raw []byte, v Validation) (*CAM, error) {
	var probe camProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("cam: malformed body: %w", err)
	}
	if probe.ProtocolVersion == nil {
		return nil, errors.New("cam: missing mandatory field protocol_version")
	}
	if probe.StationID == nil {
		return nil, errors.New("cam: missing mandatory field station_id")
	}
	if len(probe.BasicContainer) == 0 {
		return nil, errors.New("cam: missing mandatory field basic_container")
	}
	var c CAM
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("cam: malformed body: %w", err)
	}
	if err := c.validate(v); err != nil {
		return nil, fmt.Errorf("cam: %w", err)
	}
	return &c, nil
}

// CAMBuilder assembles a CAM from mandatory constructor arguments and
// chained optional setters. Range violations under Strict are
// accumulated; the first one is returned by Build.
type CAMBuilder struct {
	v   Validation
	cam CAM
	err error
}

// NewCAMBuilder starts a CAM with its mandatory fields.
func NewCAMBuilder(v Validation, stationID, stationType int64, position ReferencePosition) *CAMBuilder {
	b := &CAMBuilder{
		v: v,
		cam: CAM{
			StationID: stationID,
			BasicContainer: BasicContainer{
				StationType:       stationType,
				ReferencePosition: position,
			},
		},
	}
	b.check(v.inRange("station_id", stationID, 0, MaxStationID))
	b.check(v.inRange("station_type", stationType, 0, 255))
	b.check(position.validate(v))
	return b
}

func (b *CAMBuilder) check(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

func (b *CAMBuilder) highFreq() *HighFrequencyContainer {
	if b.cam.HighFreqContainer == nil {
		h := defaultHighFrequencyContainer()
		b.cam.HighFreqContainer = &h
	}
	return b.cam.HighFreqContainer
}

func (b *CAMBuilder) lowFreq() *LowFrequencyContainer {
	if b.cam.LowFreqContainer == nil {
		b.cam.LowFreqContainer = &LowFrequencyContainer{PathHistory: []PathPoint{}}
	}
	return b.cam.LowFreqContainer
}

func (b *CAMBuilder) WithGenerationDeltaTime(dt int64) *CAMBuilder {
	b.check(b.v.inRange("generation_delta_time", dt, 0, 65535))
	b.cam.GenerationDeltaTime = dt
	return b
}

func (b *CAMBuilder) WithPositionConfidence(c *PositionConfidence) *CAMBuilder {
	b.check(c.validate(b.v))
	b.cam.BasicContainer.Confidence = c
	return b
}

// WithHeading sets the heading in 0.1 degree units.
func (b *CAMBuilder) WithHeading(heading int64) *CAMBuilder {
	b.check(b.v.inRange("heading", heading, 0, UnknownHeading))
	b.highFreq().Heading = heading
	return b
}

// WithSpeed sets the speed in 0.01 m/s units.
func (b *CAMBuilder) WithSpeed(speed int64) *CAMBuilder {
	b.check(b.v.inRange("speed", speed, 0, UnknownSpeed))
	b.highFreq().Speed = speed
	return b
}

func (b *CAMBuilder) WithDriveDirection(d int64) *CAMBuilder {
	b.check(b.v.inRange("drive_direction", d, 0, UnknownDriveDirection))
	b.highFreq().DriveDirection = d
	return b
}

// WithDimensions sets vehicle length and width in 0.1 m units.
func (b *CAMBuilder) WithDimensions(length, width int64) *CAMBuilder {
	b.check(b.v.inRange("vehicle_length", length, 1, UnknownVehicleLength))
	b.check(b.v.inRange("vehicle_width", width, 1, UnknownVehicleWidth))
	h := b.highFreq()
	h.VehicleLength = length
	h.VehicleWidth = width
	return b
}

// WithAccelerations sets the three axis accelerations in 0.1 m/s² units.
func (b *CAMBuilder) WithAccelerations(longitudinal, lateral, vertical int64) *CAMBuilder {
	b.check(b.v.inRange("longitudinal_acceleration", longitudinal, -160, UnknownAcceleration))
	b.check(b.v.inRange("lateral_acceleration", lateral, -160, UnknownAcceleration))
	b.check(b.v.inRange("vertical_acceleration", vertical, -160, UnknownAcceleration))
	h := b.highFreq()
	h.LongitudinalAcceleration = longitudinal
	h.LateralAcceleration = lateral
	h.VerticalAcceleration = vertical
	return b
}

func (b *CAMBuilder) WithYawRate(r int64) *CAMBuilder {
	b.check(b.v.inRange("yaw_rate", r, -32766, UnknownYawRate))
	b.highFreq().YawRate = r
	return b
}

func (b *CAMBuilder) WithCurvature(c int64) *CAMBuilder {
	b.check(b.v.inRange("curvature", c, -1023, UnknownCurvature))
	b.highFreq().Curvature = c
	return b
}

func (b *CAMBuilder) WithLanePosition(p int64) *CAMBuilder {
	b.check(b.v.inRange("lane_position", p, -1, 14))
	lane := p
	b.highFreq().LanePosition = &lane
	return b
}

func (b *CAMBuilder) WithHighFrequencyConfidence(c *HighFrequencyConfidence) *CAMBuilder {
	b.highFreq().Confidence = c
	return b
}

func (b *CAMBuilder) WithVehicleRole(role int64) *CAMBuilder {
	b.check(b.v.inRange("vehicle_role", role, 0, 15))
	b.lowFreq().VehicleRole = role
	return b
}

func (b *CAMBuilder) WithExteriorLights(bits string) *CAMBuilder {
	b.lowFreq().ExteriorLights = bits
	return b
}

func (b *CAMBuilder) WithPathHistory(points []PathPoint) *CAMBuilder {
	b.check(validatePathHistory(b.v, points))
	b.lowFreq().PathHistory = points
	return b
}

// Build returns the assembled CAM or the first validation error.
func (b *CAMBuilder) Build() (*CAM, error) {
	if b.err != nil {
		return nil, fmt.Errorf("cam: %w", b.err)
	}
	cam := b.cam
	return &cam, nil
}
