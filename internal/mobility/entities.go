// Package mobility tracks the moving picture around the station: road
// users seen through CAMs, road hazards reported by DENMs and road
// sensors (with their perceived objects) advertised by CPMs. Each kind
// is an instance of the generic lifecycle registry; ingest decodes a raw
// payload, upserts the tracked entity and notifies the application.
package mobility

import (
	"fmt"
	"sync"
	"time"

	"github.com/Orange-OpenSource/its-client-sub000/internal/message"
)

// EntityKey builds the registry identity of a tracked entity: the source
// UUID concatenated with the numeric station (or object) id.
func EntityKey(sourceUUID string, id int64) string {
	return fmt.Sprintf("%s/%d", sourceUUID, id)
}

// RoadUser is a vehicle, pedestrian or other ITS station tracked from
// its CAM beacons. Fields are refreshed in place on every new message
// for the same identity.
type RoadUser struct {
	SourceUUID  string
	StationID   int64
	StationType int64

	mu         sync.Mutex
	position   message.ReferencePosition
	speedMs    float64
	headingDeg float64
	last       *message.CAM
	refreshed  time.Time
	lifetime   time.Duration
}

func (u *RoadUser) Key() string { return EntityKey(u.SourceUUID, u.StationID) }

func (u *RoadUser) LastRefresh() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.refreshed
}

func (u *RoadUser) Lifetime() time.Duration { return u.lifetime }

// Position returns the last known position.
func (u *RoadUser) Position() message.ReferencePosition {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.position
}

// SpeedMs returns the last known speed in m/s, NaN when unknown.
func (u *RoadUser) SpeedMs() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.speedMs
}

// HeadingDegree returns the last known heading in degrees, NaN when
// unknown.
func (u *RoadUser) HeadingDegree() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.headingDeg
}

// Message returns the most recent decoded CAM.
func (u *RoadUser) Message() *message.CAM {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.last
}

func (u *RoadUser) refresh(cam *message.CAM, now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.StationType = cam.BasicContainer.StationType
	u.position = cam.Position()
	u.speedMs = cam.SpeedMs()
	u.headingDeg = cam.HeadingDegree()
	u.last = cam
	u.refreshed = now
}

// RoadHazard is a DENM event, identified by its ActionID within the
// reporting source, alive for the advertised validity duration.
type RoadHazard struct {
	SourceUUID string
	ActionID   message.ActionID

	mu        sync.Mutex
	position  message.ReferencePosition
	last      *message.DENM
	refreshed time.Time
	lifetime  time.Duration
}

// Key scopes the hazard by its action id: one reporting station may own
// several concurrent events.
func (h *RoadHazard) Key() string {
	return fmt.Sprintf("%s/%s", h.SourceUUID, h.ActionID)
}

func (h *RoadHazard) LastRefresh() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshed
}

func (h *RoadHazard) Lifetime() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lifetime
}

// Position returns the event position.
func (h *RoadHazard) Position() message.ReferencePosition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

// Message returns the most recent decoded DENM.
func (h *RoadHazard) Message() *message.DENM {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Terminated reports whether the last update closed the event.
func (h *RoadHazard) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last != nil && h.last.Terminated()
}

func (h *RoadHazard) refresh(denm *message.DENM, now time.Time, fallback time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = denm.ManagementContainer.EventPosition
	h.last = denm
	h.refreshed = now
	h.lifetime = hazardLifetime(denm, fallback)
}

// hazardLifetime derives the entity lifetime from the advertised
// validity duration, falling back to the caller default when the
// message carries none. A terminated event keeps a zero lifetime so the
// next sweep evicts it.
func hazardLifetime(denm *message.DENM, fallback time.Duration) time.Duration {
	d := denm.ManagementContainer.ValidityDuration
	if denm.Terminated() {
		return 0
	}
	if d <= 0 {
		return fallback
	}
	return time.Duration(d) * time.Second
}

// SensorObject is one perceived object owned by a RoadSensor,
// independently refreshed and expired.
type SensorObject struct {
	parentKey string
	ObjectID  int64

	Object    message.PerceivedObject
	refreshed time.Time
	lifetime  time.Duration
}

func (o *SensorObject) Key() string { return EntityKey(o.parentKey, o.ObjectID) }

func (o *SensorObject) LastRefresh() time.Time  { return o.refreshed }
func (o *SensorObject) Lifetime() time.Duration { return o.lifetime }

// RoadSensor is a perceiving station tracked from its CPMs, owning the
// nested set of objects it currently reports.
type RoadSensor struct {
	SourceUUID string
	StationID  int64

	mu        sync.Mutex
	position  message.ReferencePosition
	last      *message.CPM
	refreshed time.Time
	lifetime  time.Duration
	objects   map[int64]*SensorObject
}

func (s *RoadSensor) Key() string { return EntityKey(s.SourceUUID, s.StationID) }

func (s *RoadSensor) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed
}

func (s *RoadSensor) Lifetime() time.Duration { return s.lifetime }

// Position returns the sensor's reference position.
func (s *RoadSensor) Position() message.ReferencePosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Message returns the most recent decoded CPM.
func (s *RoadSensor) Message() *message.CPM {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Objects returns the currently tracked perceived objects.
func (s *RoadSensor) Objects() []*SensorObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SensorObject, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o)
	}
	return out
}

// Object returns the tracked perceived object with the given id.
func (s *RoadSensor) Object(id int64) (*SensorObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	return o, ok
}

// refresh re-derives the nested object set from the CPM's perceived
// object container: reported ids are created or refreshed, unreported
// ones are left to age out.
func (s *RoadSensor) refresh(cpm *message.CPM, now time.Time, objectLifetime time.Duration) []*SensorObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = cpm.ManagementContainer.ReferencePosition
	s.last = cpm
	s.refreshed = now

	created := make([]*SensorObject, 0)
	for _, po := range cpm.PerceivedObjects {
		if o, ok := s.objects[po.ObjectID]; ok {
			o.Object = po
			o.refreshed = now
			continue
		}
		o := &SensorObject{
			parentKey: EntityKey(s.SourceUUID, s.StationID),
			ObjectID:  po.ObjectID,
			Object:    po,
			refreshed: now,
			lifetime:  objectLifetime,
		}
		s.objects[po.ObjectID] = o
		created = append(created, o)
	}
	return created
}

// pruneObjects evicts nested objects whose age reached their lifetime.
func (s *RoadSensor) pruneObjects(now time.Time) []*SensorObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*SensorObject
	for id, o := range s.objects {
		if now.Sub(o.refreshed) >= o.lifetime {
			delete(s.objects, id)
			expired = append(expired, o)
		}
	}
	return expired
}
