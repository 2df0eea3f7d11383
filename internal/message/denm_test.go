package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFullDENM(t *testing.T, v Validation) *DENM {
	t.Helper()
	denm, err := NewDENMBuilder(v, 17, ActionID{OriginatingStationID: 17, SequenceNumber: 3},
		500_000_000_000, 500_000_000_100, PositionFromDegree(48.85, 2.35, 0)).
		WithValidityDuration(120).
		WithTransmissionInterval(500).
		WithRelevance(2, 0).
		WithStationType(StationTypePassengerCar).
		WithPositionConfidence(NewPositionConfidence()).
		WithSituation(3, CauseCode{Cause: 94, Subcause: 2}).
		WithLocation(&LocationContainer{
			EventSpeed:           0,
			EventPositionHeading: 1800,
			Traces: [][]PathPoint{
				{{PathPosition: DeltaPosition{DeltaLatitude: 10}, PathDeltaTime: 50}},
			},
		}).
		Build()
	require.NoError(t, err)
	return denm
}

func TestDENMRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		denm func(t *testing.T) *DENM
	}{
		{"mandatory only", func(t *testing.T) *DENM {
			d, err := NewDENMBuilder(Strict, 5, ActionID{OriginatingStationID: 5, SequenceNumber: 0},
				1000, 1000, UnknownPosition()).Build()
			require.NoError(t, err)
			return d
		}},
		{"all containers", func(t *testing.T) *DENM { return buildFullDENM(t, Strict) }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := NewEnvelope("5cb4d5c2-0398-4dc3-85a3-0cbca0b26bce", 1700000000000, test.denm(t))
			raw, err := env.Encode()
			require.NoError(t, err)

			decoded, err := Decode(raw, Strict)
			require.NoError(t, err)
			assert.Equal(t, env, decoded)
		})
	}
}

func TestDENMTerminate(t *testing.T) {
	denm := buildFullDENM(t, Strict)
	require.False(t, denm.Terminated())

	// Terminated by the original reporter: cancellation.
	denm.Terminate(17)
	require.True(t, denm.Terminated())
	assert.Equal(t, int64(0), denm.ManagementContainer.ValidityDuration)
	require.NotNil(t, denm.ManagementContainer.Termination)
	assert.Equal(t, TerminationCancellation, *denm.ManagementContainer.Termination)

	// Terminated by a third party: negation.
	other := buildFullDENM(t, Strict)
	other.Terminate(99)
	require.NotNil(t, other.ManagementContainer.Termination)
	assert.Equal(t, TerminationNegation, *other.ManagementContainer.Termination)
	assert.Equal(t, int64(0), other.ManagementContainer.ValidityDuration)
}

func TestDENMTerminateReflectedInEncode(t *testing.T) {
	denm := buildFullDENM(t, Strict)
	env := NewEnvelope("src", 1, denm)

	before, err := env.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(before), `"termination"`)

	denm.Terminate(17)
	after, err := env.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(after), `"termination":0`)
	assert.Contains(t, string(after), `"validity_duration":0`)
}

func TestDENMStrictBoundaries(t *testing.T) {
	pos := UnknownPosition()
	base := func(v Validation) *DENMBuilder {
		return NewDENMBuilder(v, 1, ActionID{OriginatingStationID: 1, SequenceNumber: 65535}, 0, MaxTimestampIts, pos)
	}

	// Boundaries of the mandatory window are accepted.
	_, err := base(Strict).Build()
	assert.NoError(t, err)

	// Detection time outside the ITS epoch window.
	_, err = NewDENMBuilder(Strict, 1, ActionID{}, -1, 0, pos).Build()
	assert.Error(t, err)
	_, err = NewDENMBuilder(Strict, 1, ActionID{}, 0, MaxTimestampIts+1, pos).Build()
	assert.Error(t, err)
	_, err = NewDENMBuilder(Lenient, 1, ActionID{}, 0, MaxTimestampIts+1, pos).Build()
	assert.NoError(t, err)

	// Sequence number domain.
	_, err = NewDENMBuilder(Strict, 1, ActionID{SequenceNumber: 65536}, 0, 0, pos).Build()
	assert.Error(t, err)

	// Validity duration domain.
	_, err = base(Strict).WithValidityDuration(86400).Build()
	assert.NoError(t, err)
	_, err = base(Strict).WithValidityDuration(86401).Build()
	assert.Error(t, err)
}

func TestDecodeDENMMissingMandatory(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing management_container", `{"protocol_version": 1, "station_id": 1}`},
		{"missing action_id", `{"protocol_version": 1, "station_id": 1, "management_container": {"detection_time": 1}}`},
		{"missing station_id", `{"protocol_version": 1, "management_container": {"action_id": {"originating_station_id": 1, "sequence_number": 0}}}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeDENM([]byte(test.body), Lenient)
			assert.Error(t, err)
		})
	}
}

func TestDecodeDENMDefaults(t *testing.T) {
	body := `{
		"protocol_version": 1,
		"station_id": 3,
		"management_container": {
			"action_id": {"originating_station_id": 3, "sequence_number": 7},
			"detection_time": 1000,
			"reference_time": 1000
		}
	}`
	denm, err := DecodeDENM([]byte(body), Strict)
	require.NoError(t, err)

	m := denm.ManagementContainer
	assert.Equal(t, DefaultValidityDuration, m.ValidityDuration)
	assert.Equal(t, UnknownLatitude, m.EventPosition.Latitude)
	assert.Nil(t, m.Termination)
	assert.Nil(t, m.TransmissionInterval)
	assert.False(t, denm.Terminated())
}
