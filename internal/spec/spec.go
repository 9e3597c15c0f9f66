package spec

import (
	"time"

	"labmon/internal/convert"
	"labmon/internal/logging"
	kafkasink "labmon/sink/kafka"
	"labmon/sink/stdout"
)

type mirrorConfigs struct {
	Kafka  kafkasink.Config `yaml:"kafka"`
	Stdout stdout.Config    `yaml:"stdout"`
}

type OutputSection struct {
	Prefix      string `yaml:"prefix"`       // path + file prefix, e.g. data/ion_gauge_pressure_data
	NameLayout  string `yaml:"name_layout"`  // datetime|date
	BackupLimit int    `yaml:"backup_limit"` // records kept in memory when writes fail
}

type RotationSection struct {
	At       string        `yaml:"at"`       // "HH:MM", daily
	Every    time.Duration `yaml:"every"`    // fixed interval; exclusive with At
	Location string        `yaml:"location"` // IANA zone for At; default Local
}

type SamplingSection struct {
	Interval    time.Duration `yaml:"interval"`
	ErrorValues []float64     `yaml:"error_values"` // sentinel row; default -1 per column
}

type SourceSection struct {
	Kind    string `yaml:"kind"`    // registered driver name
	Mode    string `yaml:"mode"`    // poll|stream
	Config  string `yaml:"config"`  // driver config file, relative to the monitor file
	Convert string `yaml:"convert"` // named conversion applied to raw readings

	Thermistor convert.ThermistorConfig `yaml:"thermistor"` // convert: thermistor
}

type StreamSection struct {
	QueueCapacity     int    `yaml:"queue_capacity"`
	OnQueueFull       string `yaml:"on_queue_full"` // block|drop
	PacketsPerRequest int    `yaml:"packets_per_request"`
	MaxRequests       int    `yaml:"max_requests"` // 0 = until cancelled
	SamplesPerPacket  int    `yaml:"samples_per_packet"`
	Channels          int    `yaml:"channels"`
}

type ControlSection struct {
	GRPCPort int `yaml:"grpc_port"` // 0 disables the control server
}

type MetricsSection struct {
	Addr string `yaml:"addr"` // empty disables /metrics
}

// File is the monitor.yml schema.
type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Log     logging.Options `yaml:"log"`
	Headers []string        `yaml:"headers"`

	Output   OutputSection   `yaml:"output"`
	Rotation RotationSection `yaml:"rotation"`
	Sampling SamplingSection `yaml:"sampling"`
	Source   SourceSection   `yaml:"source"`
	Stream   StreamSection   `yaml:"stream"`

	// Mirrors receive every persisted record in addition to the CSV file.
	Mirrors       []string      `yaml:"mirrors"`
	MirrorConfigs mirrorConfigs `yaml:"mirror_configs"`

	Control         ControlSection `yaml:"control"`
	Metrics         MetricsSection `yaml:"metrics"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
}
