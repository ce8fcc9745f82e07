package observability

import (
	"strings"

	"github.com/smallbiznis/racepay/internal/config"
)

// Config is the telemetry view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OTLPEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "racepay"
	}
	t := cfg.Telemetry
	return Config{
		ServiceName:   name,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      t.LogLevel,
		LogFormat:     t.LogFormat,
		OTLPEnabled:   t.OTLPEnabled,
		OTLPEndpoint:  t.OTLPEndpoint,
		OTLPProtocol:  t.OTLPProtocol,
		SamplingRatio: t.SamplingRatio,
	}
}

// Debug is true for debug log level or any non-deployed environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
