package mobility

import (
	"fmt"
	"log"
	"time"

	"github.com/Orange-OpenSource/its-client-sub000/internal/logx"
	"github.com/Orange-OpenSource/its-client-sub000/internal/message"
	"github.com/Orange-OpenSource/its-client-sub000/internal/registry"
)

// Default lifetimes. CAMs rebroadcast at up to 1 Hz; a user not heard
// for 1.5 s is gone. DENM/CPM lifetimes are advertised by the message or
// chosen by the caller.
const (
	DefaultCAMLifetime    = 1500 * time.Millisecond
	DefaultDENMLifetime   = time.Duration(message.DefaultValidityDuration) * time.Second
	DefaultCPMLifetime    = 1500 * time.Millisecond
	DefaultObjectLifetime = 1500 * time.Millisecond
)

const logSample = 256

// Subscriber is the transport slice a manager needs at init.
type Subscriber interface {
	Subscribe(topic string) error
}

// RoadUserCallbacks notify the application of road user lifecycle
// transitions. OnMessageArrived fires for every successfully decoded
// envelope handed to Ingest, whatever its type.
type RoadUserCallbacks struct {
	OnCreated        func(*RoadUser)
	OnUpdated        func(*RoadUser)
	OnExpired        func(*RoadUser)
	OnMessageArrived func(*message.Envelope)
}

// RoadUserManager ingests CAM payloads into a road user registry.
type RoadUserManager struct {
	logger     *log.Logger
	validation message.Validation
	lifetime   time.Duration
	onMessage  func(*message.Envelope)
	reg        *registry.Registry[*RoadUser]
	now        func() time.Time
}

// NewRoadUserManager creates a manager with the given CAM lifetime
// (DefaultCAMLifetime when zero).
func NewRoadUserManager(v message.Validation, lifetime time.Duration, cb RoadUserCallbacks) *RoadUserManager {
	if lifetime <= 0 {
		lifetime = DefaultCAMLifetime
	}
	logger := logx.New("[road-user] ")
	return &RoadUserManager{
		logger:     logger,
		validation: v,
		lifetime:   lifetime,
		onMessage:  cb.OnMessageArrived,
		now:        time.Now,
		reg: registry.New[*RoadUser](logger, registry.Callbacks[*RoadUser]{
			Created: cb.OnCreated,
			Updated: cb.OnUpdated,
			Expired: cb.OnExpired,
		}),
	}
}

// Start launches the expiry sweep; idempotent.
func (m *RoadUserManager) Start() { m.reg.Start() }

// Stop halts the sweep.
func (m *RoadUserManager) Stop() { m.reg.Stop() }

// Ingest decodes a raw CAM payload and creates or refreshes the tracked
// road user. Decode failures are logged and dropped; V2X traffic is
// rebroadcast at high frequency, so a lost message costs nothing.
func (m *RoadUserManager) Ingest(payload []byte) {
	env, err := message.Decode(payload, m.validation)
	if err != nil {
		m.logger.Printf("dropped: %v | payload: %s", err, logx.Truncate(payload, logSample))
		return
	}
	if m.onMessage != nil {
		m.onMessage(env)
	}
	cam, ok := env.Message.(*message.CAM)
	if !ok {
		m.logger.Printf("dropped: expected cam, got %s", env.Type)
		return
	}

	now := m.now()
	key := EntityKey(env.SourceUUID, cam.StationID)
	m.reg.Upsert(key,
		func() *RoadUser {
			u := &RoadUser{
				SourceUUID: env.SourceUUID,
				StationID:  cam.StationID,
				lifetime:   m.lifetime,
			}
			u.refresh(cam, now)
			return u
		},
		func(u *RoadUser) { u.refresh(cam, now) },
	)
}

// Get returns the tracked road user under the given key.
func (m *RoadUserManager) Get(key string) (*RoadUser, bool) { return m.reg.Get(key) }

// Users returns the currently tracked road users.
func (m *RoadUserManager) Users() []*RoadUser { return m.reg.Snapshot() }

// Len returns the number of tracked road users.
func (m *RoadUserManager) Len() int { return m.reg.Len() }

// RoadHazardCallbacks notify the application of hazard lifecycle
// transitions. OnMessageArrived fires for every successfully decoded
// envelope handed to Ingest, whatever its type.
type RoadHazardCallbacks struct {
	OnCreated        func(*RoadHazard)
	OnUpdated        func(*RoadHazard)
	OnExpired        func(*RoadHazard)
	OnMessageArrived func(*message.Envelope)
}

// RoadHazardManager ingests DENM payloads into a road hazard registry.
type RoadHazardManager struct {
	logger     *log.Logger
	validation message.Validation
	fallback   time.Duration
	onMessage  func(*message.Envelope)
	reg        *registry.Registry[*RoadHazard]
	now        func() time.Time
}

// NewRoadHazardManager creates a manager. fallbackLifetime applies when
// a DENM advertises no validity duration (DefaultDENMLifetime when
// zero).
func NewRoadHazardManager(v message.Validation, fallbackLifetime time.Duration, cb RoadHazardCallbacks) *RoadHazardManager {
	if fallbackLifetime <= 0 {
		fallbackLifetime = DefaultDENMLifetime
	}
	logger := logx.New("[road-hazard] ")
	return &RoadHazardManager{
		logger:     logger,
		validation: v,
		fallback:   fallbackLifetime,
		onMessage:  cb.OnMessageArrived,
		now:        time.Now,
		reg: registry.New[*RoadHazard](logger, registry.Callbacks[*RoadHazard]{
			Created: cb.OnCreated,
			Updated: cb.OnUpdated,
			Expired: cb.OnExpired,
		}),
	}
}

// Init subscribes the private per-identity DENM topic, where events
// explicitly targeted at this station are delivered regardless of the
// region of interest, then starts the sweep. Idempotent sweeps; the
// subscription is issued on every call.
func (m *RoadHazardManager) Init(sub Subscriber, topicRoot, ownUUID string) error {
	topic := fmt.Sprintf("%s/outQueue/v2x/denm/%s", topicRoot, ownUUID)
	if err := sub.Subscribe(topic); err != nil {
		return fmt.Errorf("mobility: private denm subscription: %w", err)
	}
	m.logger.Printf("subscribed private topic %s", topic)
	m.reg.Start()
	return nil
}

// Start launches the expiry sweep; idempotent.
func (m *RoadHazardManager) Start() { m.reg.Start() }

// Stop halts the sweep.
func (m *RoadHazardManager) Stop() { m.reg.Stop() }

// Ingest decodes a raw DENM payload and creates or refreshes the
// tracked hazard keyed by its action id.
func (m *RoadHazardManager) Ingest(payload []byte) {
	env, err := message.Decode(payload, m.validation)
	if err != nil {
		m.logger.Printf("dropped: %v | payload: %s", err, logx.Truncate(payload, logSample))
		return
	}
	if m.onMessage != nil {
		m.onMessage(env)
	}
	denm, ok := env.Message.(*message.DENM)
	if !ok {
		m.logger.Printf("dropped: expected denm, got %s", env.Type)
		return
	}

	now := m.now()
	key := fmt.Sprintf("%s/%s", env.SourceUUID, denm.ManagementContainer.ActionID)
	m.reg.Upsert(key,
		func() *RoadHazard {
			h := &RoadHazard{
				SourceUUID: env.SourceUUID,
				ActionID:   denm.ManagementContainer.ActionID,
			}
			h.refresh(denm, now, m.fallback)
			return h
		},
		func(h *RoadHazard) { h.refresh(denm, now, m.fallback) },
	)
}

// Get returns the tracked hazard under the given key.
func (m *RoadHazardManager) Get(key string) (*RoadHazard, bool) { return m.reg.Get(key) }

// Hazards returns the currently tracked hazards.
func (m *RoadHazardManager) Hazards() []*RoadHazard { return m.reg.Snapshot() }

// Len returns the number of tracked hazards.
func (m *RoadHazardManager) Len() int { return m.reg.Len() }

// RoadSensorCallbacks notify the application of sensor and nested
// perceived-object lifecycle transitions. OnMessageArrived fires for
// every successfully decoded envelope handed to Ingest, whatever its
// type.
type RoadSensorCallbacks struct {
	OnCreated        func(*RoadSensor)
	OnUpdated        func(*RoadSensor)
	OnExpired        func(*RoadSensor)
	OnObjectCreated  func(*SensorObject)
	OnObjectExpired  func(*SensorObject)
	OnMessageArrived func(*message.Envelope)
}

// RoadSensorManager ingests CPM payloads into a road sensor registry.
// Each sensor owns the objects it reports; they are refreshed on every
// update and aged out with the same policy as the sensor itself.
type RoadSensorManager struct {
	logger         *log.Logger
	validation     message.Validation
	lifetime       time.Duration
	objectLifetime time.Duration
	onMessage      func(*message.Envelope)
	onObjCreated   func(*SensorObject)
	reg            *registry.Registry[*RoadSensor]
	now            func() time.Time
}

// NewRoadSensorManager creates a manager with the given sensor and
// nested object lifetimes (defaults when zero).
func NewRoadSensorManager(v message.Validation, lifetime, objectLifetime time.Duration, cb RoadSensorCallbacks) *RoadSensorManager {
	if lifetime <= 0 {
		lifetime = DefaultCPMLifetime
	}
	if objectLifetime <= 0 {
		objectLifetime = DefaultObjectLifetime
	}
	logger := logx.New("[road-sensor] ")
	m := &RoadSensorManager{
		logger:         logger,
		validation:     v,
		lifetime:       lifetime,
		objectLifetime: objectLifetime,
		onMessage:      cb.OnMessageArrived,
		onObjCreated:   cb.OnObjectCreated,
		now:            time.Now,
	}
	m.reg = registry.New[*RoadSensor](logger, registry.Callbacks[*RoadSensor]{
		Created: cb.OnCreated,
		Updated: cb.OnUpdated,
		Expired: cb.OnExpired,
		Swept: func(s *RoadSensor, now time.Time) {
			for _, o := range s.pruneObjects(now) {
				logger.Printf("object expired %s", o.Key())
				if cb.OnObjectExpired != nil {
					cb.OnObjectExpired(o)
				}
			}
		},
	})
	return m
}

// Start launches the expiry sweep; idempotent.
func (m *RoadSensorManager) Start() { m.reg.Start() }

// Stop halts the sweep.
func (m *RoadSensorManager) Stop() { m.reg.Stop() }

// Ingest decodes a raw CPM payload, creates or refreshes the tracked
// sensor and re-derives its perceived object set.
func (m *RoadSensorManager) Ingest(payload []byte) {
	env, err := message.Decode(payload, m.validation)
	if err != nil {
		m.logger.Printf("dropped: %v | payload: %s", err, logx.Truncate(payload, logSample))
		return
	}
	if m.onMessage != nil {
		m.onMessage(env)
	}
	cpm, ok := env.Message.(*message.CPM)
	if !ok {
		m.logger.Printf("dropped: expected cpm, got %s", env.Type)
		return
	}

	now := m.now()
	key := EntityKey(env.SourceUUID, cpm.StationID)
	var created []*SensorObject
	m.reg.Upsert(key,
		func() *RoadSensor {
			s := &RoadSensor{
				SourceUUID: env.SourceUUID,
				StationID:  cpm.StationID,
				lifetime:   m.lifetime,
				objects:    make(map[int64]*SensorObject),
			}
			created = s.refresh(cpm, now, m.objectLifetime)
			return s
		},
		func(s *RoadSensor) { created = s.refresh(cpm, now, m.objectLifetime) },
	)

	if m.onObjCreated != nil {
		for _, o := range created {
			m.onObjCreated(o)
		}
	}
}

// Get returns the tracked sensor under the given key.
func (m *RoadSensorManager) Get(key string) (*RoadSensor, bool) { return m.reg.Get(key) }

// Sensors returns the currently tracked sensors.
func (m *RoadSensorManager) Sensors() []*RoadSensor { return m.reg.Snapshot() }

// Len returns the number of tracked sensors.
func (m *RoadSensorManager) Len() int { return m.reg.Len() }
