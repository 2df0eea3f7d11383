package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func buildFullCPM(t *testing.T, v Validation) *CPM {
	t.Helper()
	cpm, err := NewCPMBuilder(v, 21, StationTypeRoadSideUnit, PositionFromDegree(48.85, 2.35, 0)).
		WithGenerationDeltaTime(4321).
		WithPositionConfidence(NewPositionConfidence()).
		WithOriginatingRSU(&OriginatingRSUContainer{
			IntersectionReferenceID: &IntersectionReferenceID{RoadRegulatorID: 1, IntersectionID: 12},
		}).
		WithSensorInformation(SensorInformation{
			SensorID: 1,
			Type:     3,
			DetectionArea: DetectionArea{
				StationaryRadial: &RadialArea{
					Range:                       10000,
					HorizontalOpeningAngleStart: 0,
					HorizontalOpeningAngleEnd:   1800,
				},
			},
		}).
		WithPerceivedObjects(
			PerceivedObject{
				ObjectID:          12,
				TimeOfMeasurement: 50,
				XDistance:         400,
				YDistance:         -200,
				XSpeed:            100,
				YSpeed:            0,
				ObjectAge:         i64(100),
				SensorIDList:      []int64{1},
				DynamicStatus:     i64(0),
				Classification: []ObjectClassification{
					{ObjectClass: ObjectClass{Vehicle: i64(5)}, Confidence: 80},
				},
				Confidence: &PerceivedObjectConfidence{
					XDistance: 50, YDistance: 50, XSpeed: 3, YSpeed: 3, Object: 9,
				},
			},
			PerceivedObject{
				ObjectID:          13,
				TimeOfMeasurement: -900, // no range check, in either mode
				XDistance:         -1000,
				YDistance:         2000,
				XSpeed:            0,
				YSpeed:            -50,
				Classification: []ObjectClassification{
					{ObjectClass: ObjectClass{VRU: i64(1)}, Confidence: 101},
				},
			},
		).
		Build()
	require.NoError(t, err)
	return cpm
}

func TestCPMRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cpm  func(t *testing.T) *CPM
	}{
		{"mandatory only", func(t *testing.T) *CPM {
			c, err := NewCPMBuilder(Strict, 2, StationTypePassengerCar, UnknownPosition()).Build()
			require.NoError(t, err)
			return c
		}},
		{"originating vehicle", func(t *testing.T) *CPM {
			c, err := NewCPMBuilder(Strict, 2, StationTypePassengerCar, PositionFromDegree(1, 1, 0)).
				WithOriginatingVehicle(&OriginatingVehicleContainer{Heading: 900, Speed: 500, DriveDirection: 0}).
				Build()
			require.NoError(t, err)
			return c
		}},
		{"full rsu", func(t *testing.T) *CPM { return buildFullCPM(t, Strict) }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := NewEnvelope("19e53e90-1b71-4e04-9b07-d51c10b26f1a", 1700000000000, test.cpm(t))
			raw, err := env.Encode()
			require.NoError(t, err)

			decoded, err := Decode(raw, Strict)
			require.NoError(t, err)
			assert.Equal(t, env, decoded)
		})
	}
}

func TestCPMStationDataChoice(t *testing.T) {
	// Both variants set: rejected in both modes.
	cpm := &CPM{
		ProtocolVersion: 1,
		StationID:       1,
		StationData: &StationDataContainer{
			OriginatingVehicle: &OriginatingVehicleContainer{Heading: 0, Speed: 0, DriveDirection: 0},
			OriginatingRSU:     &OriginatingRSUContainer{},
		},
	}
	assert.Error(t, cpm.validate(Lenient))
	assert.Error(t, cpm.validate(Strict))

	// Neither variant set.
	cpm.StationData = &StationDataContainer{}
	assert.Error(t, cpm.validate(Lenient))
}

func TestDetectionAreaKind(t *testing.T) {
	tests := []struct {
		area DetectionArea
		kind DetectionAreaKind
	}{
		{DetectionArea{VehicleSensor: &VehicleSensor{}}, AreaVehicleSensor},
		{DetectionArea{StationaryRadial: &RadialArea{}}, AreaStationaryRadial},
		{DetectionArea{StationaryPolygon: &PolygonArea{}}, AreaStationaryPolygon},
		{DetectionArea{StationaryCircular: &CircularArea{}}, AreaStationaryCircular},
		{DetectionArea{StationaryEllipse: &EllipticArea{}}, AreaStationaryEllipse},
		{DetectionArea{StationaryRectangle: &RectangularArea{}}, AreaStationaryRectangle},
		{DetectionArea{}, AreaNone},
	}
	for _, test := range tests {
		assert.Equal(t, test.kind, test.area.Kind())
	}
}

func TestDetectionAreaExactlyOne(t *testing.T) {
	cpm := &CPM{
		ProtocolVersion: 1,
		StationID:       1,
		SensorInformation: []SensorInformation{
			{SensorID: 1, Type: 1, DetectionArea: DetectionArea{
				StationaryRadial:   &RadialArea{},
				StationaryCircular: &CircularArea{},
			}},
		},
	}
	assert.Error(t, cpm.validate(Lenient))

	cpm.SensorInformation[0].DetectionArea = DetectionArea{StationaryCircular: &CircularArea{Radius: 500}}
	assert.NoError(t, cpm.validate(Lenient))
}

func TestObjectClassStationType(t *testing.T) {
	tests := []struct {
		class    ObjectClass
		expected int64
	}{
		{ObjectClass{Vehicle: i64(5)}, StationTypePassengerCar},
		{ObjectClass{Vehicle: i64(8)}, StationTypeHeavyTruck},
		{ObjectClass{VRU: i64(1)}, StationTypePedestrian},
		{ObjectClass{VRU: i64(2)}, StationTypeCyclist},
		{ObjectClass{VRU: i64(3)}, StationTypeMoped},
		{ObjectClass{VRU: i64(4)}, StationTypeMotorcycle},
		{ObjectClass{Other: i64(1)}, StationTypeUnknown},
		{ObjectClass{}, StationTypeUnknown},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, test.class.StationType())
	}
}

func TestCPMStrictBoundaries(t *testing.T) {
	base := func() PerceivedObject {
		return PerceivedObject{ObjectID: 0, XDistance: 0, YDistance: 0, XSpeed: 0, YSpeed: 0}
	}

	object := base()
	object.ObjectID = 255
	cpm := &CPM{ProtocolVersion: 1, StationID: 1, PerceivedObjects: []PerceivedObject{object}}
	assert.NoError(t, cpm.validate(Strict))

	object = base()
	object.ObjectID = 256
	cpm.PerceivedObjects = []PerceivedObject{object}
	assert.Error(t, cpm.validate(Strict))
	assert.NoError(t, cpm.validate(Lenient))

	object = base()
	object.XDistance = 132768
	cpm.PerceivedObjects = []PerceivedObject{object}
	assert.Error(t, cpm.validate(Strict))

	// time_of_measurement is never range-checked.
	object = base()
	object.TimeOfMeasurement = 1_000_000
	cpm.PerceivedObjects = []PerceivedObject{object}
	assert.NoError(t, cpm.validate(Strict))
}

func TestDecodeCPMMissingMandatory(t *testing.T) {
	_, err := DecodeCPM([]byte(`{"protocol_version": 1, "station_id": 1}`), Lenient)
	assert.Error(t, err)
	_, err = DecodeCPM([]byte(`{"protocol_version": 1, "management_container": {"station_type": 15}}`), Lenient)
	assert.Error(t, err)
}

func TestDecodeCPMDefaults(t *testing.T) {
	body := `{
		"protocol_version": 1,
		"station_id": 4,
		"management_container": {"station_type": 15},
		"station_data_container": {"originating_vehicle_container": {}}
	}`
	cpm, err := DecodeCPM([]byte(body), Strict)
	require.NoError(t, err)

	assert.Equal(t, UnknownLatitude, cpm.ManagementContainer.ReferencePosition.Latitude)
	require.NotNil(t, cpm.StationData.OriginatingVehicle)
	assert.Equal(t, UnknownHeading, cpm.StationData.OriginatingVehicle.Heading)
	assert.Equal(t, UnknownSpeed, cpm.StationData.OriginatingVehicle.Speed)
}

func TestObjectIDSequenceWraps(t *testing.T) {
	var seq ObjectIDSequence
	for i := int64(0); i < 256; i++ {
		assert.Equal(t, i, seq.Next())
	}
	assert.Equal(t, int64(0), seq.Next())
	assert.Equal(t, int64(1), seq.Next())
}
