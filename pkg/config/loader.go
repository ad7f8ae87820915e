package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "RCP"

// envAliases are the plain environment names operators already use. Each
// also resolves with the RCP_ prefix.
var envAliases = map[string]string{
	"circuit.failure_threshold": "CIRCUIT_FAILURE_THRESHOLD",
	"circuit.reset_timeout_ms":  "CIRCUIT_RESET_TIMEOUT_MS",
	"throttle.window_ms":        "THROTTLE_WINDOW_MS",
	"throttle.max_requests":     "THROTTLE_MAX_REQUESTS",
	"cache.ttl_seconds":         "CACHE_TTL_SECONDS",
	"cache.max_size_bytes":      "CACHE_MAX_SIZE_BYTES",
	"scaler.min_instances":      "SCALER_MIN_INSTANCES",
	"scaler.max_instances":      "SCALER_MAX_INSTANCES",
	"scaler.cooldown_ms":        "SCALER_COOLDOWN_MS",
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"log-level": "app.log_level",
	"mode":      "app.mode",
	"port":      "api.port",
	"collector": "collector.type",
	"scaler":    "scaler.type",
	"storage":   "storage.driver",
}

// RegisterFlags adds the config override flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("mode", "", "run mode (development, production, test)")
	fs.Int("port", 0, "admin API port")
	fs.String("collector", "", "metrics source (host, http, prometheus, synthetic)")
	fs.String("scaler", "", "replica executor (simulator, kubernetes)")
	fs.String("storage", "", "storage driver (none, postgres, sqlite3)")
}

// Load reads defaults, then the config file, then the environment, then any
// flags that were set. A missing config file is not an error.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/resilience-plane")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+env, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "resilience-plane")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	v.SetDefault("storage.driver", "none")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", 5432)
	v.SetDefault("storage.name", "resilience_plane")
	v.SetDefault("storage.user", "rcp")
	v.SetDefault("storage.ssl_mode", "disable")
	v.SetDefault("storage.path", "./data/resilience-plane.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.migration_timeout", "60s")
	v.SetDefault("storage.sample_retention", "168h")

	v.SetDefault("collector.type", "host")
	v.SetDefault("collector.endpoint", "http://localhost:9000/metrics")
	v.SetDefault("collector.timeout", "5s")
	v.SetDefault("collector.retry_attempts", 3)
	v.SetDefault("collector.retry_delay", "500ms")
	v.SetDefault("collector.pattern", "steady")

	v.SetDefault("sampler.interval", "10s")
	v.SetDefault("sampler.persist_interval", "5m")
	v.SetDefault("sampler.history_capacity", 1000)
	v.SetDefault("sampler.snapshot_path", "./data/metrics-history.json")

	v.SetDefault("analyzer.cpu_high", 80.0)
	v.SetDefault("analyzer.cpu_critical", 95.0)
	v.SetDefault("analyzer.memory_high", 85.0)
	v.SetDefault("analyzer.memory_critical", 95.0)
	v.SetDefault("analyzer.latency_threshold_ms", 1000.0)
	v.SetDefault("analyzer.latency_critical_ms", 3000.0)
	v.SetDefault("analyzer.sustained_samples", 3)
	v.SetDefault("analyzer.trend_window", "5m")
	v.SetDefault("analyzer.spike_threshold", 50.0)

	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_ms", 30000)

	v.SetDefault("throttle.window_ms", 60000)
	v.SetDefault("throttle.max_requests", 100)
	v.SetDefault("throttle.load_threshold", 0.8)
	v.SetDefault("throttle.recompute_interval", "30s")

	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.max_size_bytes", 50*1024*1024)
	v.SetDefault("cache.maintenance_interval", "60s")
	v.SetDefault("cache.report_interval", "5m")
	v.SetDefault("cache.preload_interval", "1h")

	v.SetDefault("scaler.type", "simulator")
	v.SetDefault("scaler.min_instances", 2)
	v.SetDefault("scaler.max_instances", 10)
	v.SetDefault("scaler.cooldown_ms", 300000)
	v.SetDefault("scaler.cpu_threshold", 75.0)
	v.SetDefault("scaler.memory_threshold", 80.0)
	v.SetDefault("scaler.evaluate_interval", "60s")
	v.SetDefault("scaler.execution_timeout", "30s")
	v.SetDefault("scaler.min_confidence", 0.5)
	v.SetDefault("scaler.forecast_horizon", "60m")
	v.SetDefault("scaler.initial_replicas", 2)
	v.SetDefault("scaler.provision_time", "2s")
	v.SetDefault("scaler.namespace", "default")

	v.SetDefault("alert.webhook_timeout", "5s")

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.operator_user", "admin")
	v.SetDefault("api.login_rate_per_minute", 10)
	v.SetDefault("api.login_burst", 5)
	v.SetDefault("api.default_limit", 20)
	v.SetDefault("api.max_limit", 100)
	v.SetDefault("api.cors.allowed_origins", []string{"*"})
	v.SetDefault("api.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("api.cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Trace-ID"})

	v.SetDefault("websocket.max_connections", 1000)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.broadcast_buffer", 256)
	v.SetDefault("websocket.client_buffer", 256)

	v.SetDefault("events.buffer_size", 1000)
	v.SetDefault("events.persist_severity", "warning")
}
