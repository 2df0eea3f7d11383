package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// CPM is a Collective Perception Message body: the sensor view of an ITS
// station, listing its sensors and the objects they currently perceive.
type CPM struct {
	ProtocolVersion     int64                  `json:"protocol_version"`
	StationID           int64                  `json:"station_id"`
	GenerationDeltaTime int64                  `json:"generation_delta_time"`
	ManagementContainer CPMManagementContainer `json:"management_container"`
	StationData         *StationDataContainer  `json:"station_data_container,omitempty"`
	SensorInformation   []SensorInformation    `json:"sensor_information_container,omitempty"`
	PerceivedObjects    []PerceivedObject      `json:"perceived_object_container,omitempty"`
}

func (c *CPM) MessageType() string { return TypeCPM }

// CPMManagementContainer locates the originating station.
type CPMManagementContainer struct {
	StationType       int64               `json:"station_type"`
	ReferencePosition ReferencePosition   `json:"reference_position"`
	Confidence        *PositionConfidence `json:"confidence,omitempty"`
}

func (m *CPMManagementContainer) UnmarshalJSON(b []byte) error {
	type alias CPMManagementContainer
	a := alias{ReferencePosition: UnknownPosition()}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*m = CPMManagementContainer(a)
	return nil
}

// StationDataContainer is a tagged choice: the originating station is a
// vehicle or an RSU, never both.
type StationDataContainer struct {
	OriginatingVehicle *OriginatingVehicleContainer `json:"originating_vehicle_container,omitempty"`
	OriginatingRSU     *OriginatingRSUContainer     `json:"originating_rsu_container,omitempty"`
}

func (s *StationDataContainer) validate(v Validation) error {
	if (s.OriginatingVehicle == nil) == (s.OriginatingRSU == nil) {
		return errors.New("station_data_container must carry exactly one of originating_vehicle_container, originating_rsu_container")
	}
	if o := s.OriginatingVehicle; o != nil {
		if err := v.inRange("heading", o.Heading, 0, UnknownHeading); err != nil {
			return err
		}
		if err := v.inRange("speed", o.Speed, 0, UnknownSpeed); err != nil {
			return err
		}
		return v.inRange("drive_direction", o.DriveDirection, 0, UnknownDriveDirection)
	}
	return nil
}

// OriginatingVehicleContainer carries the moving sender's kinematics.
type OriginatingVehicleContainer struct {
	Heading        int64 `json:"heading"`
	Speed          int64 `json:"speed"`
	DriveDirection int64 `json:"drive_direction"`
}

func (o *OriginatingVehicleContainer) UnmarshalJSON(b []byte) error {
	type alias OriginatingVehicleContainer
	a := alias{Heading: UnknownHeading, Speed: UnknownSpeed, DriveDirection: UnknownDriveDirection}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*o = OriginatingVehicleContainer(a)
	return nil
}

// OriginatingRSUContainer references the road infrastructure the RSU is
// attached to.
type OriginatingRSUContainer struct {
	IntersectionReferenceID *IntersectionReferenceID `json:"intersection_reference_id,omitempty"`
	RoadSegmentReferenceID  *int64                   `json:"road_segment_reference_id,omitempty"`
}

type IntersectionReferenceID struct {
	RoadRegulatorID int64 `json:"road_regulator_id"`
	IntersectionID  int64 `json:"intersection_id"`
}

// SensorInformation describes one sensor of the station and its
// detection area.
type SensorInformation struct {
	SensorID      int64         `json:"sensor_id"`
	Type          int64         `json:"type"`
	DetectionArea DetectionArea `json:"detection_area"`
}

// DetectionArea is a six-way tagged union; exactly one geometry is set.
type DetectionArea struct {
	VehicleSensor       *VehicleSensor   `json:"vehicle_sensor,omitempty"`
	StationaryRadial    *RadialArea      `json:"stationary_sensor_radial,omitempty"`
	StationaryPolygon   *PolygonArea     `json:"stationary_sensor_polygon,omitempty"`
	StationaryCircular  *CircularArea    `json:"stationary_sensor_circular,omitempty"`
	StationaryEllipse   *EllipticArea    `json:"stationary_sensor_ellipse,omitempty"`
	StationaryRectangle *RectangularArea `json:"stationary_sensor_rectangle,omitempty"`
}

// DetectionAreaKind names the variant carried by a DetectionArea.
type DetectionAreaKind int

const (
	AreaNone DetectionAreaKind = iota
	AreaVehicleSensor
	AreaStationaryRadial
	AreaStationaryPolygon
	AreaStationaryCircular
	AreaStationaryEllipse
	AreaStationaryRectangle
)

// Kind returns the variant set on the union, AreaNone when empty.
func (a DetectionArea) Kind() DetectionAreaKind {
	switch {
	case a.VehicleSensor != nil:
		return AreaVehicleSensor
	case a.StationaryRadial != nil:
		return AreaStationaryRadial
	case a.StationaryPolygon != nil:
		return AreaStationaryPolygon
	case a.StationaryCircular != nil:
		return AreaStationaryCircular
	case a.StationaryEllipse != nil:
		return AreaStationaryEllipse
	case a.StationaryRectangle != nil:
		return AreaStationaryRectangle
	}
	return AreaNone
}

func (a DetectionArea) variantCount() int {
	n := 0
	for _, set := range []bool{
		a.VehicleSensor != nil,
		a.StationaryRadial != nil,
		a.StationaryPolygon != nil,
		a.StationaryCircular != nil,
		a.StationaryEllipse != nil,
		a.StationaryRectangle != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// VehicleSensor is a sensor mounted on the moving station, described by
// its mounting offset and one or more angle/range properties.
type VehicleSensor struct {
	RefPointID              int64                   `json:"ref_point_id"`
	XSensorOffset           int64                   `json:"x_sensor_offset"`
	YSensorOffset           int64                   `json:"y_sensor_offset"`
	ZSensorOffset           *int64                  `json:"z_sensor_offset,omitempty"`
	VehicleSensorProperties []VehicleSensorProperty `json:"vehicle_sensor_property_list,omitempty"`
}

type VehicleSensorProperty struct {
	Range                       int64 `json:"range"`
	HorizontalOpeningAngleStart int64 `json:"horizontal_opening_angle_start"`
	HorizontalOpeningAngleEnd   int64 `json:"horizontal_opening_angle_end"`
}

// RadialArea is a stationary sensor's circular sector.
type RadialArea struct {
	Range                       int64   `json:"range"`
	HorizontalOpeningAngleStart int64   `json:"horizontal_opening_angle_start"`
	HorizontalOpeningAngleEnd   int64   `json:"horizontal_opening_angle_end"`
	SensorPositionOffset        *Offset `json:"sensor_position_offset,omitempty"`
}

// Offset is a planar offset from the station reference position, in
// 0.01 m units.
type Offset struct {
	X int64  `json:"x"`
	Y int64  `json:"y"`
	Z *int64 `json:"z,omitempty"`
}

// PolygonArea is a closed polygon of offsets.
type PolygonArea struct {
	Polygon []Offset `json:"polygon"`
}

// CircularArea is a circle around an optional offset center.
type CircularArea struct {
	NodeCenterPoint *Offset `json:"node_center_point,omitempty"`
	Radius          int64   `json:"radius"`
}

// EllipticArea is an ellipse around an optional offset center.
type EllipticArea struct {
	NodeCenterPoint           *Offset `json:"node_center_point,omitempty"`
	SemiMajorRangeLength      int64   `json:"semi_major_range_length"`
	SemiMinorRangeLength      int64   `json:"semi_minor_range_length"`
	SemiMajorRangeOrientation int64   `json:"semi_major_range_orientation"`
}

// RectangularArea is a rectangle around an optional offset center.
type RectangularArea struct {
	NodeCenterPoint           *Offset `json:"node_center_point,omitempty"`
	SemiMajorRangeLength      int64   `json:"semi_major_range_length"`
	SemiMinorRangeLength      int64   `json:"semi_minor_range_length"`
	SemiMajorRangeOrientation int64   `json:"semi_major_range_orientation"`
}

// PerceivedObject is one object currently tracked by the station's
// sensors. Distances are 0.01 m, speeds 0.01 m/s, accelerations
// 0.1 m/s², angles 0.1°, relative to the station reference position.
//
// time_of_measurement is intentionally not range-checked in either
// validation mode.
type PerceivedObject struct {
	ObjectID          int64  `json:"object_id"`
	TimeOfMeasurement int64  `json:"time_of_measurement"`
	XDistance         int64  `json:"x_distance"`
	YDistance         int64  `json:"y_distance"`
	ZDistance         *int64 `json:"z_distance,omitempty"`
	XSpeed            int64  `json:"x_speed"`
	YSpeed            int64  `json:"y_speed"`
	ZSpeed            *int64 `json:"z_speed,omitempty"`
	XAcceleration     *int64 `json:"x_acceleration,omitempty"`
	YAcceleration     *int64 `json:"y_acceleration,omitempty"`
	ZAcceleration     *int64 `json:"z_acceleration,omitempty"`
	RollAngle         *int64 `json:"roll_angle,omitempty"`
	PitchAngle        *int64 `json:"pitch_angle,omitempty"`
	YawAngle          *int64 `json:"yaw_angle,omitempty"`
	RollRate          *int64 `json:"roll_rate,omitempty"`
	PitchRate         *int64 `json:"pitch_rate,omitempty"`
	YawRate           *int64 `json:"yaw_rate,omitempty"`
	RollAcceleration  *int64 `json:"roll_acceleration,omitempty"`
	PitchAcceleration *int64 `json:"pitch_acceleration,omitempty"`
	YawAcceleration   *int64 `json:"yaw_acceleration,omitempty"`

	PlanarObjectDimension1  *int64  `json:"planar_object_dimension_1,omitempty"`
	PlanarObjectDimension2  *int64  `json:"planar_object_dimension_2,omitempty"`
	VerticalObjectDimension *int64  `json:"vertical_object_dimension,omitempty"`
	ObjectRefPoint          int64   `json:"object_ref_point"`
	ObjectAge               *int64  `json:"object_age,omitempty"`
	SensorIDList            []int64 `json:"sensor_id_list,omitempty"`
	DynamicStatus           *int64  `json:"dynamic_status,omitempty"`

	Classification []ObjectClassification     `json:"classification,omitempty"`
	Confidence     *PerceivedObjectConfidence `json:"confidence,omitempty"`
}

// ObjectClassification is one classification hypothesis with its
// confidence percentage (0..100, 101 unavailable).
type ObjectClassification struct {
	ObjectClass ObjectClass `json:"object_class"`
	Confidence  int64       `json:"confidence"`
}

// ObjectClass is a tagged choice among vehicle, VRU and other subtypes.
type ObjectClass struct {
	Vehicle *int64 `json:"vehicle,omitempty"`
	VRU     *int64 `json:"vru,omitempty"`
	Other   *int64 `json:"other,omitempty"`
}

// ObjectClassKind names the variant carried by an ObjectClass.
type ObjectClassKind int

const (
	ClassNone ObjectClassKind = iota
	ClassVehicle
	ClassVRU
	ClassOther
)

// Kind returns the variant set on the choice, ClassNone when empty.
func (c ObjectClass) Kind() ObjectClassKind {
	switch {
	case c.Vehicle != nil:
		return ClassVehicle
	case c.VRU != nil:
		return ClassVRU
	case c.Other != nil:
		return ClassOther
	}
	return ClassNone
}

// StationType maps the classification to the ITS station type it
// represents, StationTypeUnknown when it has no mapping.
func (c ObjectClass) StationType() int64 {
	switch c.Kind() {
	case ClassVehicle:
		return *c.Vehicle
	case ClassVRU:
		switch *c.VRU {
		case 1:
			return StationTypePedestrian
		case 2:
			return StationTypeCyclist
		case 3:
			return StationTypeMoped
		case 4:
			return StationTypeMotorcycle
		}
	}
	return StationTypeUnknown
}

func (c ObjectClass) variantCount() int {
	n := 0
	for _, set := range []bool{c.Vehicle != nil, c.VRU != nil, c.Other != nil} {
		if set {
			n++
		}
	}
	return n
}

// PerceivedObjectConfidence grades the object measurement quality.
type PerceivedObjectConfidence struct {
	XDistance int64 `json:"x_distance"`
	YDistance int64 `json:"y_distance"`
	XSpeed    int64 `json:"x_speed"`
	YSpeed    int64 `json:"y_speed"`
	Object    int64 `json:"object"`
}

func (c *CPM) validate(v Validation) error {
	if err := v.inRange("protocol_version", c.ProtocolVersion, 0, 255); err != nil {
		return err
	}
	if err := v.inRange("station_id", c.StationID, 0, MaxStationID); err != nil {
		return err
	}
	if err := v.inRange("generation_delta_time", c.GenerationDeltaTime, 0, 65535); err != nil {
		return err
	}
	if err := v.inRange("station_type", c.ManagementContainer.StationType, 0, 255); err != nil {
		return err
	}
	if err := c.ManagementContainer.ReferencePosition.validate(v); err != nil {
		return err
	}
	if err := c.ManagementContainer.Confidence.validate(v); err != nil {
		return err
	}
	if c.StationData != nil {
		// Exactly-one is structural: enforced in both modes.
		if err := c.StationData.validate(v); err != nil {
			return err
		}
	}
	for i := range c.SensorInformation {
		s := &c.SensorInformation[i]
		if err := v.inRange("sensor_id", s.SensorID, 0, 255); err != nil {
			return err
		}
		if err := v.inRange("sensor type", s.Type, 0, 15); err != nil {
			return err
		}
		if s.DetectionArea.variantCount() != 1 {
			return errors.New("detection_area must carry exactly one geometry variant")
		}
	}
	for i := range c.PerceivedObjects {
		if err := c.PerceivedObjects[i].validate(v); err != nil {
			return err
		}
	}
	return nil
}

func (o *PerceivedObject) validate(v Validation) error {
	if err := v.inRange("object_id", o.ObjectID, 0, 255); err != nil {
		return err
	}
	// time_of_measurement: no range check (see package doc).
	for _, f := range []struct {
		name string
		val  int64
	}{
		{"x_distance", o.XDistance},
		{"y_distance", o.YDistance},
	} {
		if err := v.inRange(f.name, f.val, -132768, 132767); err != nil {
			return err
		}
	}
	if err := v.inRangeOpt("z_distance", o.ZDistance, -132768, 132767); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		val  int64
	}{
		{"x_speed", o.XSpeed},
		{"y_speed", o.YSpeed},
	} {
		if err := v.inRange(f.name, f.val, -16383, UnknownSpeed); err != nil {
			return err
		}
	}
	if err := v.inRangeOpt("z_speed", o.ZSpeed, -16383, UnknownSpeed); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		val  *int64
	}{
		{"x_acceleration", o.XAcceleration},
		{"y_acceleration", o.YAcceleration},
		{"z_acceleration", o.ZAcceleration},
	} {
		if err := v.inRangeOpt(f.name, f.val, -160, UnknownAcceleration); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name string
		val  *int64
	}{
		{"roll_angle", o.RollAngle},
		{"pitch_angle", o.PitchAngle},
		{"yaw_angle", o.YawAngle},
	} {
		if err := v.inRangeOpt(f.name, f.val, 0, UnknownHeading); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		name string
		val  *int64
	}{
		{"planar_object_dimension_1", o.PlanarObjectDimension1},
		{"planar_object_dimension_2", o.PlanarObjectDimension2},
		{"vertical_object_dimension", o.VerticalObjectDimension},
	} {
		if err := v.inRangeOpt(f.name, f.val, 0, 1023); err != nil {
			return err
		}
	}
	if err := v.inRange("object_ref_point", o.ObjectRefPoint, 0, 8); err != nil {
		return err
	}
	if err := v.inRangeOpt("object_age", o.ObjectAge, 0, 1500); err != nil {
		return err
	}
	for _, id := range o.SensorIDList {
		if err := v.inRange("sensor_id_list entry", id, 0, 255); err != nil {
			return err
		}
	}
	if err := v.inRangeOpt("dynamic_status", o.DynamicStatus, 0, 2); err != nil {
		return err
	}
	for _, cl := range o.Classification {
		if cl.ObjectClass.variantCount() != 1 {
			return errors.New("object_class must carry exactly one of vehicle, vru, other")
		}
		if err := v.inRange("classification confidence", cl.Confidence, 0, 101); err != nil {
			return err
		}
	}
	if cf := o.Confidence; cf != nil {
		if err := v.inRange("x_distance confidence", cf.XDistance, 0, 102); err != nil {
			return err
		}
		if err := v.inRange("y_distance confidence", cf.YDistance, 0, 102); err != nil {
			return err
		}
		if err := v.inRange("x_speed confidence", cf.XSpeed, 1, 7); err != nil {
			return err
		}
		if err := v.inRange("y_speed confidence", cf.YSpeed, 1, 7); err != nil {
			return err
		}
		if err := v.inRange("object confidence", cf.Object, 0, 10); err != nil {
			return err
		}
	}
	return nil
}

type cpmProbe struct {
	ProtocolVersion     *int64          `json:"protocol_version"`
	StationID           *int64          `json:"station_id"`
	ManagementContainer json.RawMessage `json:"management_container"`
}

// DecodeCPM parses a CPM body.
func DecodeCPM(raw []byte, v Validation) (*CPM, error) {
	var probe cpmProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("cpm: malformed body: %w", err)
	}
	if probe.ProtocolVersion == nil {
		return nil, errors.New("cpm: missing mandatory field protocol_version")
	}
	if probe.StationID == nil {
		return nil, errors.New("cpm: missing mandatory field station_id")
	}
	if len(probe.ManagementContainer) == 0 {
		return nil, errors.New("cpm: missing mandatory field management_container")
	}
	var c CPM
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("cpm: malformed body: %w", err)
	}
	if err := c.validate(v); err != nil {
		return nil, fmt.Errorf("cpm: %w", err)
	}
	return &c, nil
}

// ObjectIDSequence hands out perceived object ids round-robin, wrapping
// back to 0 after 255. Safe for concurrent use.
type ObjectIDSequence struct {
	mu   sync.Mutex
	next int64
}

// Next returns the next object id.
func (s *ObjectIDSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next = (s.next + 1) % 256
	return id
}

// CPMBuilder assembles a CPM from its mandatory fields and chained
// optional setters.
type CPMBuilder struct {
	v   Validation
	cpm CPM
	err error
}

// NewCPMBuilder starts a CPM with its mandatory fields.
func NewCPMBuilder(v Validation, stationID, stationType int64, position ReferencePosition) *CPMBuilder {
	b := &CPMBuilder{
		v: v,
		cpm: CPM{
			StationID: stationID,
			ManagementContainer: CPMManagementContainer{
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

func (b *CPMBuilder) check(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

func (b *CPMBuilder) WithGenerationDeltaTime(dt int64) *CPMBuilder {
	b.check(b.v.inRange("generation_delta_time", dt, 0, 65535))
	b.cpm.GenerationDeltaTime = dt
	return b
}

func (b *CPMBuilder) WithPositionConfidence(c *PositionConfidence) *CPMBuilder {
	b.check(c.validate(b.v))
	b.cpm.ManagementContainer.Confidence = c
	return b
}

func (b *CPMBuilder) WithOriginatingVehicle(o *OriginatingVehicleContainer) *CPMBuilder {
	b.cpm.StationData = &StationDataContainer{OriginatingVehicle: o}
	return b
}

func (b *CPMBuilder) WithOriginatingRSU(o *OriginatingRSUContainer) *CPMBuilder {
	b.cpm.StationData = &StationDataContainer{OriginatingRSU: o}
	return b
}

func (b *CPMBuilder) WithSensorInformation(s ...SensorInformation) *CPMBuilder {
	b.cpm.SensorInformation = append(b.cpm.SensorInformation, s...)
	return b
}

func (b *CPMBuilder) WithPerceivedObjects(objects ...PerceivedObject) *CPMBuilder {
	b.cpm.PerceivedObjects = append(b.cpm.PerceivedObjects, objects...)
	return b
}

// Build returns the assembled CPM or the first validation error. The
// exactly-one constraints of the tagged unions are enforced in both
// modes.
func (b *CPMBuilder) Build() (*CPM, error) {
	if b.err != nil {
		return nil, fmt.Errorf("cpm: %w", b.err)
	}
	if err := b.cpm.validate(b.v); err != nil {
		return nil, fmt.Errorf("cpm: %w", err)
	}
	cpm := b.cpm
	return &cpm, nil
}
