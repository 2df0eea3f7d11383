// Package history records tracked-entity positions in InfluxDB, giving
// operators a queryable trail of what moved through the region of
// interest.
package history

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Options configure the InfluxDB connection.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Recorder writes position points through the blocking write API; the
// caller decides how often to record.
type Recorder struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	logger *log.Logger
}

// New creates a recorder.
func New(opts Options, logger *log.Logger) *Recorder {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &Recorder{
		client: client,
		write:  client.WriteAPIBlocking(opts.Org, opts.Bucket),
		logger: logger,
	}
}

// Record writes one point. Tags identify the entity, fields carry the
// measured values.
func (r *Recorder) Record(ctx context.Context, measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	point := influxdb2.NewPoint(measurement, tags, fields, at)
	if err := r.write.WritePoint(ctx, point); err != nil {
		r.logger.Printf("influx write error: %v", err)
	}
}

// Close releases the underlying client.
func (r *Recorder) Close() {
	if r != nil && r.client != nil {
		r.client.Close()
	}
}
