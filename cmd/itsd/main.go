// Command itsd subscribes to the V2X topics covering a region of
// interest, tracks the road users, hazards and sensors reported there
// and optionally republishes their lifecycle downstream.
package main

import (
	"context"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/Orange-OpenSource/its-client-sub000/internal/bridge"
	"github.com/Orange-OpenSource/its-client-sub000/internal/config"
	"github.com/Orange-OpenSource/its-client-sub000/internal/history"
	"github.com/Orange-OpenSource/its-client-sub000/internal/logx"
	"github.com/Orange-OpenSource/its-client-sub000/internal/message"
	"github.com/Orange-OpenSource/its-client-sub000/internal/mobility"
	"github.com/Orange-OpenSource/its-client-sub000/internal/roi"
	"github.com/Orange-OpenSource/its-client-sub000/internal/runtime"
	"github.com/Orange-OpenSource/its-client-sub000/internal/transport"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg.Logger.Printf("starting itsd with configuration:%s", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runtime.SetupGracefulShutdown(cancel, cfg.Logger)

	validation := message.Lenient
	if cfg.StrictValidation {
		validation = message.Strict
	}

	var kafkaBridge *bridge.Bridge
	if cfg.BridgeEnabled() {
		kafkaBridge = bridge.New(bridge.Options{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeoutMs) * time.Millisecond,
		}, logx.New("[bridge] "))
		defer kafkaBridge.Close()
	}

	var recorder *history.Recorder
	if cfg.HistoryEnabled() {
		recorder = history.New(history.Options{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logx.New("[history] "))
		defer recorder.Close()
	}

	forward := func(event, category, key string, entity interface{}) {
		if kafkaBridge != nil {
			kafkaBridge.Publish(ctx, event, category, key, entity)
		}
	}

	users := mobility.NewRoadUserManager(validation,
		time.Duration(cfg.CAMLifetimeMs)*time.Millisecond,
		mobility.RoadUserCallbacks{
			OnCreated: func(u *mobility.RoadUser) {
				forward(bridge.EventCreated, "cam", u.Key(), userSnapshot(u))
			},
			OnUpdated: func(u *mobility.RoadUser) {
				forward(bridge.EventUpdated, "cam", u.Key(), userSnapshot(u))
				recordUser(ctx, recorder, u)
			},
			OnExpired: func(u *mobility.RoadUser) {
				forward(bridge.EventExpired, "cam", u.Key(), nil)
			},
		})

	hazards := mobility.NewRoadHazardManager(validation,
		time.Duration(cfg.DENMLifetimeMs)*time.Millisecond,
		mobility.RoadHazardCallbacks{
			OnCreated: func(h *mobility.RoadHazard) {
				forward(bridge.EventCreated, "denm", h.Key(), hazardSnapshot(h))
			},
			OnUpdated: func(h *mobility.RoadHazard) {
				forward(bridge.EventUpdated, "denm", h.Key(), hazardSnapshot(h))
			},
			OnExpired: func(h *mobility.RoadHazard) {
				forward(bridge.EventExpired, "denm", h.Key(), nil)
			},
		})

	sensors := mobility.NewRoadSensorManager(validation,
		time.Duration(cfg.CPMLifetimeMs)*time.Millisecond,
		time.Duration(cfg.ObjectLifetimeMs)*time.Millisecond,
		mobility.RoadSensorCallbacks{
			OnCreated: func(s *mobility.RoadSensor) {
				forward(bridge.EventCreated, "cpm", s.Key(), sensorSnapshot(s))
			},
			OnUpdated: func(s *mobility.RoadSensor) {
				forward(bridge.EventUpdated, "cpm", s.Key(), sensorSnapshot(s))
			},
			OnExpired: func(s *mobility.RoadSensor) {
				forward(bridge.EventExpired, "cpm", s.Key(), nil)
			},
		})

	route := func(topic string, payload []byte) {
		category, ok := roi.CategoryFromTopic(topic)
		if !ok {
			return
		}
		switch category {
		case roi.CategoryCAM:
			users.Ingest(payload)
		case roi.CategoryDENM:
			hazards.Ingest(payload)
		case roi.CategoryCPM:
			sensors.Ingest(payload)
		}
	}

	client := transport.NewClient(transport.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		QoS:       cfg.MQTTQoS,
	}, logx.New("[mqtt] "), route)

	if err := client.ConnectWithBackoff(ctx, 2*time.Second, 30*time.Second); err != nil {
		cfg.Logger.Fatalf("mqtt connect aborted: %v", err)
	}
	defer client.Disconnect()

	users.Start()
	sensors.Start()
	if err := hazards.Init(client, cfg.TopicRoot, cfg.StationUUID); err != nil {
		cfg.Logger.Fatalf("hazard registry init error: %v", err)
	}
	defer users.Stop()
	defer hazards.Stop()
	defer sensors.Stop()

	engine := roi.New(client, cfg.TopicRoot, logx.New("[roi] "))
	for _, cat := range roi.Categories {
		if err := engine.SetRoI(cat, cfg.RoILatitude, cfg.RoILongitude, cfg.RoIZoomLevel, cfg.RoINeighbors); err != nil {
			cfg.Logger.Printf("set roi %s error: %v", cat, err)
		}
	}

	<-ctx.Done()
	cfg.Logger.Println("itsd stopped")
}

// num renders a possibly-unknown float as a JSON-safe value.
func num(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func userSnapshot(u *mobility.RoadUser) interface{} {
	pos := u.Position()
	return map[string]interface{}{
		"source_uuid":    u.SourceUUID,
		"station_id":     u.StationID,
		"station_type":   u.StationType,
		"latitude":       pos.Latitude,
		"longitude":      pos.Longitude,
		"speed_ms":       num(u.SpeedMs()),
		"heading_degree": num(u.HeadingDegree()),
	}
}

func hazardSnapshot(h *mobility.RoadHazard) interface{} {
	pos := h.Position()
	snapshot := map[string]interface{}{
		"source_uuid":            h.SourceUUID,
		"originating_station_id": h.ActionID.OriginatingStationID,
		"sequence_number":        h.ActionID.SequenceNumber,
		"latitude":               pos.Latitude,
		"longitude":              pos.Longitude,
		"terminated":             h.Terminated(),
	}
	if m := h.Message(); m != nil && m.SituationContainer != nil {
		snapshot["cause"] = m.SituationContainer.EventType.Cause
		snapshot["subcause"] = m.SituationContainer.EventType.Subcause
	}
	return snapshot
}

func sensorSnapshot(s *mobility.RoadSensor) interface{} {
	pos := s.Position()
	objects := s.Objects()
	ids := make([]int64, 0, len(objects))
	for _, o := range objects {
		ids = append(ids, o.ObjectID)
	}
	return map[string]interface{}{
		"source_uuid": s.SourceUUID,
		"station_id":  s.StationID,
		"latitude":    pos.Latitude,
		"longitude":   pos.Longitude,
		"object_ids":  ids,
	}
}

func recordUser(ctx context.Context, recorder *history.Recorder, u *mobility.RoadUser) {
	if recorder == nil {
		return
	}
	pos := u.Position()
	if !pos.Known() {
		return
	}
	fields := map[string]interface{}{
		"latitude":  pos.LatitudeDegree(),
		"longitude": pos.LongitudeDegree(),
	}
	if v := u.SpeedMs(); !math.IsNaN(v) {
		fields["speed_ms"] = v
	}
	if v := u.HeadingDegree(); !math.IsNaN(v) {
		fields["heading_degree"] = v
	}
	recorder.Record(ctx, "road_user", map[string]string{
		"source_uuid":  u.SourceUUID,
		"station_id":   strconv.FormatInt(u.StationID, 10),
		"station_type": strconv.FormatInt(u.StationType, 10),
	}, fields, time.Now().UTC())
}
