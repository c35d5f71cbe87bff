// Package config holds the process settings and the desired ipset state
// loaded from disk.
//
// Settings come from the environment (IPSET_* variables) and are overridden
// by command line flags. The desired state is a JSON or YAML file listing the
// sets and their entries, and it's reloaded when the file changes.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "IPSET"

// Settings holds the process wide configuration.
type Settings struct {
	Netns       string        `envconfig:"NETNS"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile     string        `envconfig:"LOG_FILE"`
	LogFormat   string        `envconfig:"LOG_FORMAT" default:"text"`
	RecvTimeout time.Duration `envconfig:"RECV_TIMEOUT" default:"5s"`
	RecvBuffer  int           `envconfig:"RECV_BUFFER"`
	Config      string        `envconfig:"CONFIG"`
	MetricsAddr string        `envconfig:"METRICS_ADDR"`
}

// LoadSettings reads the settings from the environment.
func LoadSettings() (*Settings, error) {
	s := &Settings{}
	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return nil, errors.Wrap(err, "reading environment")
	}
	return s, nil
}
