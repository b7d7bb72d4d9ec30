package observability

import (
	"strings"

	"github.com/smallbiznis/wasteloop/internal/config"
)

// Config is the resolved telemetry setup for the running service.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	tel := cfg.Telemetry

	out := Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "wasteloop"),
		Environment:          firstNonEmpty(tel.DeploymentEnv, cfg.Environment),
		Version:              firstNonEmpty(tel.ServiceVersion, cfg.AppVersion),
		LogLevel:             firstNonEmpty(tel.LogLevel, "info"),
		LogFormat:            firstNonEmpty(tel.LogFormat, "json"),
		OtelEnabled:          tel.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: firstNonEmpty(tel.OtelProtocol, "grpc"),
		OtelSamplingRatio:    tel.SamplingRatio,
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 0.1
	}
	return out
}

// Debug turns on stack traces in request logs.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
