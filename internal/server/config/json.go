package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/usenetsync/internal/flagx"
	"github.com/dmitrijs2005/usenetsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO (Data Transfer Object) used only for
// reading JSON configuration files. After unmarshalling, its fields are
// copied into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN               string         `json:"database_dsn"`
	ShareSecretKey            string         `json:"share_secret_key"`
	Newsgroup                 string         `json:"newsgroup"`
	SegmentSizeBytes          int            `json:"segment_size_bytes"`
	CompressionThresholdRatio float64        `json:"compression_threshold_ratio"`
	MaxRetryCount             int            `json:"max_retry_count"`
	WorkersPerDirection       int            `json:"workers_per_direction"`
	MaxRateMbps               float64        `json:"max_rate_mbps"`
	QueuePollInterval         timex.Duration `json:"queue_poll_interval"`
	HealthCheckTTL            timex.Duration `json:"health_check_ttl"`
	Servers                   []ServerConfig `json:"servers"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file path is found, parseJson attempts to read and unmarshal it
// into a JsonConfig. The resulting values are copied into the target Config.
// If the file cannot be read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.ShareSecretKey = c.ShareSecretKey
	config.Newsgroup = c.Newsgroup
	config.SegmentSizeBytes = c.SegmentSizeBytes
	config.CompressionThresholdRatio = c.CompressionThresholdRatio
	config.MaxRetryCount = c.MaxRetryCount
	config.WorkersPerDirection = c.WorkersPerDirection
	config.MaxRateMbps = c.MaxRateMbps
	config.QueuePollInterval = time.Duration(c.QueuePollInterval.Duration)
	config.HealthCheckTTL = time.Duration(c.HealthCheckTTL.Duration)
	config.Servers = c.Servers
}
