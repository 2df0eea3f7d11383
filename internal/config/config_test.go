package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads so a test starts from
// a known environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_QOS",
		"STATION_UUID", "TOPIC_ROOT", "STRICT_VALIDATION",
		"ROI_LATITUDE", "ROI_LONGITUDE", "ROI_ZOOM_LEVEL", "ROI_NEIGHBORS",
		"CAM_LIFETIME_MS", "DENM_LIFETIME_MS", "CPM_LIFETIME_MS", "OBJECT_LIFETIME_MS",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_BATCH_SIZE", "KAFKA_BATCH_TIMEOUT_MS",
		"INFLUX_URL", "INFLUX_TOKEN", "INFLUX_ORG", "INFLUX_BUCKET",
	} {
		t.Setenv(key, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")
	t.Setenv("ROI_LATITUDE", "48.8566")
	t.Setenv("ROI_LONGITUDE", "2.3522")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBrokerURL)
	assert.Equal(t, "its-client", cfg.MQTTClientID)
	assert.Equal(t, byte(1), cfg.MQTTQoS)
	assert.NotEmpty(t, cfg.StationUUID)
	assert.Equal(t, "its", cfg.TopicRoot)
	assert.False(t, cfg.StrictValidation)
	assert.Equal(t, 18, cfg.RoIZoomLevel)
	assert.True(t, cfg.RoINeighbors)
	assert.Equal(t, 1500, cfg.CAMLifetimeMs)
	assert.Equal(t, 600_000, cfg.DENMLifetimeMs)
	assert.False(t, cfg.BridgeEnabled())
	assert.False(t, cfg.HistoryEnabled())
	assert.NotNil(t, cfg.Logger)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad latitude", "ROI_LATITUDE", "north"},
		{"bad qos", "MQTT_QOS", "3"},
		{"bad zoom", "ROI_ZOOM_LEVEL", "23"},
		{"bad bool", "STRICT_VALIDATION", "maybe"},
		{"bad lifetime", "CAM_LIFETIME_MS", "0"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			t.Setenv(test.key, test.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigKafkaBrokers(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("KAFKA_TOPIC", "its-events")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.BridgeEnabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "its-events", cfg.KafkaTopic)
}

func TestLoadConfigInfluxNeedsOrgAndBucket(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("INFLUX_URL", "http://localhost:8086")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("INFLUX_ORG", "its")
	t.Setenv("INFLUX_BUCKET", "positions")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.HistoryEnabled())
}

func TestLoadConfigStationUUIDStable(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("STATION_UUID", "6a2cba41-bd82-4d66-b63e-97b6cfc4b689")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "6a2cba41-bd82-4d66-b63e-97b6cfc4b689", cfg.StationUUID)
}
