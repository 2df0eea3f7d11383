package message

import "fmt"

// Validation selects how out-of-range field values are handled.
//
// Strict rejects a value outside its ETSI-defined domain at build or
// decode time, failing that single message. Lenient keeps the value as
// supplied, never clamped or replaced, favouring availability over
// correctness for high-frequency rebroadcast traffic.
type Validation int

const (
	Lenient Validation = iota
	Strict
)

func (v Validation) String() string {
	if v == Strict {
		return "strict"
	}
	return "lenient"
}

// inRange reports a range violation only under Strict.
func (v Validation) inRange(field string, val, min, max int64) error {
	if v == Strict && (val < min || val > max) {
		return fmt.Errorf("message: %s = %d out of range [%d, %d]", field, val, min, max)
	}
	return nil
}

func (v Validation) inRangeOpt(field string, val *int64, min, max int64) error {
	if val == nil {
		return nil
	}
	return v.inRange(field, *val, min, max)
}

// ETSI field domains and their "unknown" sentinels. The sentinel is part
// of the valid domain; it must stay distinguishable from a legitimate
// zero.
const (
	UnknownLatitude  int64 = 900000001  // 0.1 microdegree
	UnknownLongitude int64 = 1800000001 // 0.1 microdegree
	UnknownAltitude  int64 = 800001     // centimetre

	UnknownSemiAxisLength      int64 = 4095 // centimetre
	UnknownHeading             int64 = 3601 // 0.1 degree
	UnknownSpeed               int64 = 16383
	UnknownDriveDirection      int64 = 2
	UnknownVehicleLength       int64 = 1023
	UnknownVehicleWidth        int64 = 62
	UnknownAcceleration        int64 = 161
	UnknownYawRate             int64 = 32767
	UnknownCurvature           int64 = 1023
	UnknownAltitudeConfidence  int64 = 15
	UnknownHeadingConfidence   int64 = 127
	UnknownSpeedConfidence     int64 = 127
	UnknownYawRateConfidence   int64 = 8
	UnknownCurvatureConfidence int64 = 7

	MaxStationID    int64 = 4294967295
	MaxTimestampIts int64 = 4398046511103 // ms since 2004-01-01T00:00:00Z
	MaxPathPoints         = 40
)

// Station types (ETSI TS 102 894-2 StationType).
const (
	StationTypeUnknown        int64 = 0
	StationTypePedestrian     int64 = 1
	StationTypeCyclist        int64 = 2
	StationTypeMoped          int64 = 3
	StationTypeMotorcycle     int64 = 4
	StationTypePassengerCar   int64 = 5
	StationTypeBus            int64 = 6
	StationTypeLightTruck     int64 = 7
	StationTypeHeavyTruck     int64 = 8
	StationTypeTrailer        int64 = 9
	StationTypeSpecialVehicle int64 = 10
	StationTypeTram           int64 = 11
	StationTypeRoadSideUnit   int64 = 15
)
