// Package config loads the client configuration from the environment.
// Missing or inconsistent values are accumulated and reported together.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Orange-OpenSource/its-client-sub000/internal/geotile"
)

type Config struct {
	// MQTT
	MQTTBrokerURL string
	MQTTClientID  string
	MQTTUsername  string // optional
	MQTTPassword  string // optional
	MQTTQoS       byte

	// Station identity and validation policy
	StationUUID      string
	TopicRoot        string
	StrictValidation bool

	// Region of interest
	RoILatitude  float64
	RoILongitude float64
	RoIZoomLevel int
	RoINeighbors bool

	// Entity lifetimes, milliseconds
	CAMLifetimeMs    int
	DENMLifetimeMs   int
	CPMLifetimeMs    int
	ObjectLifetimeMs int

	// Kafka bridge, enabled when KAFKA_BROKERS is set
	KafkaBrokers        []string
	KafkaTopic          string
	KafkaBatchSize      int
	KafkaBatchTimeoutMs int

	// InfluxDB history, enabled when INFLUX_URL is set
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	Logger *log.Logger
}

// BridgeEnabled reports whether lifecycle events are forwarded to Kafka.
func (c *Config) BridgeEnabled() bool { return len(c.KafkaBrokers) > 0 }

// HistoryEnabled reports whether positions are recorded in InfluxDB.
func (c *Config) HistoryEnabled() bool { return c.InfluxURL != "" }

func (c *Config) String() string {
	return fmt.Sprintf(`
MQTT:
  BrokerURL:   %s
  ClientID:    %s
  Username:    %s
  QoS:         %d

Station:
  UUID:        %s
  TopicRoot:   %s
  Strict:      %v

RoI:
  Latitude:    %f
  Longitude:   %f
  ZoomLevel:   %d
  Neighbors:   %v

Lifetimes (ms):
  CAM:         %d
  DENM:        %d
  CPM:         %d
  Object:      %d

Kafka bridge:
  Brokers:     %v
  Topic:       %s

Influx history:
  URL:         %s
  Org:         %s
  Bucket:      %s
`, c.MQTTBrokerURL, c.MQTTClientID, c.MQTTUsername, c.MQTTQoS,
		c.StationUUID, c.TopicRoot, c.StrictValidation,
		c.RoILatitude, c.RoILongitude, c.RoIZoomLevel, c.RoINeighbors,
		c.CAMLifetimeMs, c.DENMLifetimeMs, c.CPMLifetimeMs, c.ObjectLifetimeMs,
		c.KafkaBrokers, c.KafkaTopic,
		c.InfluxURL, c.InfluxOrg, c.InfluxBucket)
}

type errList []string

func (e *errList) addf(format string, a ...any) {
	*e = append(*e, fmt.Sprintf(format, a...))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int, errs *errList) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		errs.addf("%s invalid (expected int): %q", key, v)
		return fallback
	}
	return n
}

func getenvFloat(key string, errs *errList) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		errs.addf("missing %s", key)
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		errs.addf("%s invalid (expected float): %q", key, v)
		return 0
	}
	return f
}

func getenvBool(key string, fallback bool, errs *errList) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		errs.addf("%s invalid (expected bool): %q", key, v)
		return fallback
	}
	return b
}

func getenvQoS(key string, fallback byte, errs *errList) byte {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 2 {
		errs.addf("%s invalid (0..2): %q", key, v)
		return fallback
	}
	return byte(n)
}

// LoadConfig reads the environment. MQTT_BROKER_URL, ROI_LATITUDE and
// ROI_LONGITUDE are required; everything else has a default or enables
// an optional component when set.
func LoadConfig() (*Config, error) {
	var errs errList

	cfg := &Config{
		MQTTBrokerURL: os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:  getenv("MQTT_CLIENT_ID", "its-client"),
		MQTTUsername:  os.Getenv("MQTT_USERNAME"),
		MQTTPassword:  os.Getenv("MQTT_PASSWORD"),
		MQTTQoS:       getenvQoS("MQTT_QOS", 1, &errs),

		StationUUID:      getenv("STATION_UUID", uuid.NewString()),
		TopicRoot:        getenv("TOPIC_ROOT", "its"),
		StrictValidation: getenvBool("STRICT_VALIDATION", false, &errs),

		RoILatitude:  getenvFloat("ROI_LATITUDE", &errs),
		RoILongitude: getenvFloat("ROI_LONGITUDE", &errs),
		RoIZoomLevel: getenvInt("ROI_ZOOM_LEVEL", 18, &errs),
		RoINeighbors: getenvBool("ROI_NEIGHBORS", true, &errs),

		CAMLifetimeMs:    getenvInt("CAM_LIFETIME_MS", 1500, &errs),
		DENMLifetimeMs:   getenvInt("DENM_LIFETIME_MS", 600_000, &errs),
		CPMLifetimeMs:    getenvInt("CPM_LIFETIME_MS", 1500, &errs),
		ObjectLifetimeMs: getenvInt("OBJECT_LIFETIME_MS", 1500, &errs),

		KafkaTopic:          getenv("KAFKA_TOPIC", "v2x-events"),
		KafkaBatchSize:      getenvInt("KAFKA_BATCH_SIZE", 1000, &errs),
		KafkaBatchTimeoutMs: getenvInt("KAFKA_BATCH_TIMEOUT_MS", 5, &errs),

		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: os.Getenv("INFLUX_BUCKET"),

		Logger: log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if s := strings.TrimSpace(b); s != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, s)
			}
		}
		if len(cfg.KafkaBrokers) == 0 {
			errs.addf("KAFKA_BROKERS invalid (empty list)")
		}
	}

	if cfg.MQTTBrokerURL == "" {
		errs.addf("missing MQTT_BROKER_URL")
	}
	if cfg.RoIZoomLevel < geotile.MinLevel || cfg.RoIZoomLevel > geotile.MaxLevel {
		errs.addf("ROI_ZOOM_LEVEL out of range [%d, %d]: %d", geotile.MinLevel, geotile.MaxLevel, cfg.RoIZoomLevel)
	}
	if cfg.CAMLifetimeMs <= 0 || cfg.DENMLifetimeMs <= 0 || cfg.CPMLifetimeMs <= 0 || cfg.ObjectLifetimeMs <= 0 {
		errs.addf("lifetimes must be > 0")
	}
	if cfg.HistoryEnabled() && (cfg.InfluxOrg == "" || cfg.InfluxBucket == "") {
		errs.addf("INFLUX_ORG and INFLUX_BUCKET are required when INFLUX_URL is set")
	}

	if len(errs) > 0 {
		for _, e := range errs {
			log.Printf("[config] %s", e)
		}
		return nil, errors.New("missing/invalid environment variables, see logs above")
	}
	return cfg, nil
}
