package observability

import (
	"math"
	"strings"

	"github.com/smallbiznis/eventcover/internal/config"
)

const (
	defaultServiceName = "eventcover"

	// production traces a sample, development traces everything
	prodSamplingRatio = 0.1
	devSamplingRatio  = 1.0
)

// Config is the normalised telemetry setup shared by the logger, tracer and meter.
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
	t := cfg.Telemetry

	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             normalizeLevel(t.LogLevel),
		LogFormat:            normalizeFormat(t.LogFormat),
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(t.OtelEndpoint),
		OtelExporterProtocol: normalizeProtocol(t.OtelProtocol),
		OtelSamplingRatio:    t.SamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = defaultServiceName
	}
	if out.OtelExporterEndpoint == "" {
		out.OtelEnabled = false
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 || math.IsNaN(out.OtelSamplingRatio) {
		out.OtelSamplingRatio = prodSamplingRatio
		if isDevEnv(out.Environment) {
			out.OtelSamplingRatio = devSamplingRatio
		}
	}
	return out
}

func (c Config) Debug() bool {
	return c.LogLevel == "debug" || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "debug", "info", "warn", "error":
		return level
	case "warning":
		return "warn"
	default:
		return "info"
	}
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

func normalizeProtocol(protocol string) string {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		return "http"
	default:
		return "grpc"
	}
}
