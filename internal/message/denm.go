package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Termination values of a DENM management container.
const (
	TerminationCancellation int64 = 0
	TerminationNegation     int64 = 1
)

// DefaultValidityDuration is applied when a DENM carries no
// validity_duration, in seconds.
const DefaultValidityDuration int64 = 600

// DENM is a Decentralized Environmental Notification Message body: an
// event report (hazard, roadworks, stationary vehicle...) identified by
// its ActionID and bounded in time by its validity duration.
//
// A DENM is immutable once built or decoded, with a single documented
// exception: Terminate, which closes the event. Encode always reflects
// the current state.
type DENM struct {
	ProtocolVersion     int64               `json:"protocol_version"`
	StationID           int64               `json:"station_id"`
	ManagementContainer ManagementContainer `json:"management_container"`
	SituationContainer  *SituationContainer `json:"situation_container,omitempty"`
	LocationContainer   *LocationContainer  `json:"location_container,omitempty"`
	AlacarteContainer   json.RawMessage     `json:"alacarte_container,omitempty"`
}

func (d *DENM) MessageType() string { return TypeDENM }

// ActionID uniquely identifies a DENM event: the originating station and
// a sequence number scoped to it.
type ActionID struct {
	OriginatingStationID int64 `json:"originating_station_id"`
	SequenceNumber       int64 `json:"sequence_number"`
}

// String renders the action id in its canonical "station/sequence" form.
func (a ActionID) String() string {
	return fmt.Sprintf("%d/%d", a.OriginatingStationID, a.SequenceNumber)
}

// ManagementContainer carries the event identity, timing and relevance
// area. Timestamps are TimestampIts: milliseconds since 2004-01-01 UTC.
type ManagementContainer struct {
	ActionID                  ActionID            `json:"action_id"`
	DetectionTime             int64               `json:"detection_time"`
	ReferenceTime             int64               `json:"reference_time"`
	Termination               *int64              `json:"termination,omitempty"`
	EventPosition             ReferencePosition   `json:"event_position"`
	RelevanceDistance         *int64              `json:"relevance_distance,omitempty"`
	RelevanceTrafficDirection *int64              `json:"relevance_traffic_direction,omitempty"`
	ValidityDuration          int64               `json:"validity_duration"`
	TransmissionInterval      *int64              `json:"transmission_interval,omitempty"`
	StationType               int64               `json:"station_type"`
	Confidence                *PositionConfidence `json:"confidence,omitempty"`
}

func (m *ManagementContainer) UnmarshalJSON(b []byte) error {
	type alias ManagementContainer
	a := alias{
		EventPosition:    UnknownPosition(),
		ValidityDuration: DefaultValidityDuration,
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*m = ManagementContainer(a)
	return nil
}

// SituationContainer describes the event cause.
type SituationContainer struct {
	InformationQuality int64      `json:"information_quality"`
	EventType          CauseCode  `json:"event_type"`
	LinkedCause        *CauseCode `json:"linked_cause,omitempty"`
}

type CauseCode struct {
	Cause    int64 `json:"cause"`
	Subcause int64 `json:"subcause"`
}

// LocationContainer describes the event surroundings.
type LocationContainer struct {
	EventSpeed           int64         `json:"event_speed"`
	EventPositionHeading int64         `json:"event_position_heading"`
	Traces               [][]PathPoint `json:"traces"`
	RoadType             *int64        `json:"road_type,omitempty"`
}

func (l *LocationContainer) UnmarshalJSON(b []byte) error {
	type alias LocationContainer
	a := alias{
		EventSpeed:           UnknownSpeed,
		EventPositionHeading: UnknownHeading,
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*l = LocationContainer(a)
	return nil
}

// Terminated reports whether the event has been closed.
func (d *DENM) Terminated() bool {
	return d.ManagementContainer.Termination != nil
}

// Terminate closes the event: validity drops to zero and the termination
// kind records whether the original reporter (cancellation) or another
// station (negation) closed it. This is the only permitted in-place
// mutation of a DENM; a previously encoded form is stale afterwards and
// must be regenerated with Encode.
func (d *DENM) Terminate(byStationID int64) {
	t := TerminationNegation
	if byStationID == d.ManagementContainer.ActionID.OriginatingStationID {
		t = TerminationCancellation
	}
	d.ManagementContainer.Termination = &t
	d.ManagementContainer.ValidityDuration = 0
}

func (d *DENM) validate(v Validation) error {
	if err := v.inRange("protocol_version", d.ProtocolVersion, 0, 255); err != nil {
		return err
	}
	if err := v.inRange("station_id", d.StationID, 0, MaxStationID); err != nil {
		return err
	}
	m := &d.ManagementContainer
	if err := v.inRange("originating_station_id", m.ActionID.OriginatingStationID, 0, MaxStationID); err != nil {
		return err
	}
	if err := v.inRange("sequence_number", m.ActionID.SequenceNumber, 0, 65535); err != nil {
		return err
	}
	if err := v.inRange("detection_time", m.DetectionTime, 0, MaxTimestampIts); err != nil {
		return err
	}
	if err := v.inRange("reference_time", m.ReferenceTime, 0, MaxTimestampIts); err != nil {
		return err
	}
	if err := v.inRangeOpt("termination", m.Termination, TerminationCancellation, TerminationNegation); err != nil {
		return err
	}
	if err := m.EventPosition.validate(v); err != nil {
		return err
	}
	if err := v.inRangeOpt("relevance_distance", m.RelevanceDistance, 0, 7); err != nil {
		return err
	}
	if err := v.inRangeOpt("relevance_traffic_direction", m.RelevanceTrafficDirection, 0, 3); err != nil {
		return err
	}
	if err := v.inRange("validity_duration", m.ValidityDuration, 0, 86400); err != nil {
		return err
	}
	if err := v.inRangeOpt("transmission_interval", m.TransmissionInterval, 1, 10000); err != nil {
		return err
	}
	if err := v.inRange("station_type", m.StationType, 0, 255); err != nil {
		return err
	}
	if err := m.Confidence.validate(v); err != nil {
		return err
	}
	if s := d.SituationContainer; s != nil {
		if err := v.inRange("information_quality", s.InformationQuality, 0, 7); err != nil {
			return err
		}
		if err := v.inRange("cause", s.EventType.Cause, 0, 255); err != nil {
			return err
		}
		if err := v.inRange("subcause", s.EventType.Subcause, 0, 255); err != nil {
			return err
		}
		if s.LinkedCause != nil {
			if err := v.inRange("linked cause", s.LinkedCause.Cause, 0, 255); err != nil {
				return err
			}
			if err := v.inRange("linked subcause", s.LinkedCause.Subcause, 0, 255); err != nil {
				return err
			}
		}
	}
	if l := d.LocationContainer; l != nil {
		if err := v.inRange("event_speed", l.EventSpeed, 0, UnknownSpeed); err != nil {
			return err
		}
		if err := v.inRange("event_position_heading", l.EventPositionHeading, 0, UnknownHeading); err != nil {
			return err
		}
		if err := v.inRangeOpt("road_type", l.RoadType, 0, 3); err != nil {
			return err
		}
		for _, trace := range l.Traces {
			if err := validatePathHistory(v, trace); err != nil {
				return err
			}
		}
	}
	return nil
}

type denmProbe struct {
	ProtocolVersion     *int64 `json:"protocol_version"`
	StationID           *int64 `json:"station_id"`
	ManagementContainer *struct {
		ActionID *ActionID `json:"action_id"`
	} `json:"management_container"`
}

// DecodeDENM parses a DENM body. The action id is always mandatory: an
// event without identity cannot be tracked.
func DecodeDENM(raw []byte, v Validation) (*DENM, error) {
	var probe denmProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("denm: malformed body: %w", err)
	}
	if probe.ProtocolVersion == nil {
		return nil, errors.New("denm: missing mandatory field protocol_version")
	}
	if probe.StationID == nil {
		return nil, errors.New("denm: missing mandatory field station_id")
	}
	if probe.ManagementContainer == nil {
		return nil, errors.New("denm: missing mandatory field management_container")
	}
	if probe.ManagementContainer.ActionID == nil {
		return nil, errors.New("denm: missing mandatory field action_id")
	}
	var d DENM
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("denm: malformed body: %w", err)
	}
	if err := d.validate(v); err != nil {
		return nil, fmt.Errorf("denm: %w", err)
	}
	return &d, nil
}

// DENMBuilder assembles a DENM from its mandatory identity and chained
// optional setters.
type DENMBuilder struct {
	v    Validation
	denm DENM
	err  error
}

// NewDENMBuilder starts a DENM for the given reporting station, event
// identity and event position.
func NewDENMBuilder(v Validation, stationID int64, actionID ActionID, detectionTime, referenceTime int64, eventPosition ReferencePosition) *DENMBuilder {
	b := &DENMBuilder{
		v: v,
		denm: DENM{
			StationID: stationID,
			ManagementContainer: ManagementContainer{
				ActionID:         actionID,
				DetectionTime:    detectionTime,
				ReferenceTime:    referenceTime,
				EventPosition:    eventPosition,
				ValidityDuration: DefaultValidityDuration,
			},
		},
	}
	b.check(v.inRange("station_id", stationID, 0, MaxStationID))
	b.check(v.inRange("originating_station_id", actionID.OriginatingStationID, 0, MaxStationID))
	b.check(v.inRange("sequence_number", actionID.SequenceNumber, 0, 65535))
	b.check(v.inRange("detection_time", detectionTime, 0, MaxTimestampIts))
	b.check(v.inRange("reference_time", referenceTime, 0, MaxTimestampIts))
	b.check(eventPosition.validate(v))
	return b
}

func (b *DENMBuilder) check(err error) {
	if b.err == nil && err != nil {
		b.err = err
	}
}

func (b *DENMBuilder) WithValidityDuration(seconds int64) *DENMBuilder {
	b.check(b.v.inRange("validity_duration", seconds, 0, 86400))
	b.denm.ManagementContainer.ValidityDuration = seconds
	return b
}

func (b *DENMBuilder) WithTransmissionInterval(ms int64) *DENMBuilder {
	b.check(b.v.inRange("transmission_interval", ms, 1, 10000))
	b.denm.ManagementContainer.TransmissionInterval = &ms
	return b
}

func (b *DENMBuilder) WithRelevance(distance, trafficDirection int64) *DENMBuilder {
	b.check(b.v.inRange("relevance_distance", distance, 0, 7))
	b.check(b.v.inRange("relevance_traffic_direction", trafficDirection, 0, 3))
	b.denm.ManagementContainer.RelevanceDistance = &distance
	b.denm.ManagementContainer.RelevanceTrafficDirection = &trafficDirection
	return b
}

func (b *DENMBuilder) WithStationType(t int64) *DENMBuilder {
	b.check(b.v.inRange("station_type", t, 0, 255))
	b.denm.ManagementContainer.StationType = t
	return b
}

func (b *DENMBuilder) WithPositionConfidence(c *PositionConfidence) *DENMBuilder {
	b.check(c.validate(b.v))
	b.denm.ManagementContainer.Confidence = c
	return b
}

func (b *DENMBuilder) WithSituation(quality int64, cause CauseCode) *DENMBuilder {
	b.check(b.v.inRange("information_quality", quality, 0, 7))
	b.check(b.v.inRange("cause", cause.Cause, 0, 255))
	b.check(b.v.inRange("subcause", cause.Subcause, 0, 255))
	b.denm.SituationContainer = &SituationContainer{InformationQuality: quality, EventType: cause}
	return b
}

func (b *DENMBuilder) WithLocation(l *LocationContainer) *DENMBuilder {
	b.denm.LocationContainer = l
	return b
}

// Build returns the assembled DENM or the first validation error.
func (b *DENMBuilder) Build() (*DENM, error) {
	if b.err != nil {
		return nil, fmt.Errorf("denm: %w", b.err)
	}
	if err := b.denm.validate(b.v); err != nil {
		return nil, fmt.Errorf("denm: %w", err)
	}
	denm := b.denm
	return &denm, nil
}
