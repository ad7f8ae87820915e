package config

import (
	"time"

	"github.com/OldStager01/resilience-plane/pkg/database"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Collector CollectorConfig `mapstructure:"collector"`
	Sampler   SamplerConfig   `mapstructure:"sampler"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Circuit   CircuitConfig   `mapstructure:"circuit"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scaler    ScalerConfig    `mapstructure:"scaler"`
	Alert     AlertConfig     `mapstructure:"alert"`
	API       APIConfig       `mapstructure:"api"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Events    EventsConfig    `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the optional SQL backend. Driver "none" keeps all
// state in memory.
type StorageConfig struct {
	Driver           string        `mapstructure:"driver"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	Path             string        `mapstructure:"path"`
	MaxConnections   int           `mapstructure:"max_connections"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
	// SharedThrottle stores throttle counters in the database so every
	// instance sees the same windows.
	SharedThrottle bool `mapstructure:"shared_throttle"`
	// SampleRetention prunes archived samples older than this. Zero keeps
	// everything.
	SampleRetention time.Duration `mapstructure:"sample_retention"`
}

func (s StorageConfig) Enabled() bool {
	return s.Driver != "" && s.Driver != database.DriverNone
}

func (s StorageConfig) ToDBConfig() database.Config {
	return database.Config{
		Driver:          s.Driver,
		Host:            s.Host,
		Port:            s.Port,
		Name:            s.Name,
		User:            s.User,
		Password:        s.Password,
		SSLMode:         s.SSLMode,
		Path:            s.Path,
		MaxConnections:  s.MaxConnections,
		ConnMaxLifetime: s.ConnMaxLifetime,
		PingTimeout:     s.PingTimeout,
	}
}

type CollectorConfig struct {
	Type          string            `mapstructure:"type"`
	Endpoint      string            `mapstructure:"endpoint"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RetryAttempts int               `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration     `mapstructure:"retry_delay"`
	Pattern       string            `mapstructure:"pattern"`
	Queries       map[string]string `mapstructure:"queries"`
}

type SamplerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	PersistInterval time.Duration `mapstructure:"persist_interval"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
	SnapshotPath    string        `mapstructure:"snapshot_path"`
}

type AnalyzerConfig struct {
	CPUHigh            float64       `mapstructure:"cpu_high"`
	CPUCritical        float64       `mapstructure:"cpu_critical"`
	MemoryHigh         float64       `mapstructure:"memory_high"`
	MemoryCritical     float64       `mapstructure:"memory_critical"`
	LatencyThresholdMs float64       `mapstructure:"latency_threshold_ms"`
	LatencyCriticalMs  float64       `mapstructure:"latency_critical_ms"`
	SustainedSamples   int           `mapstructure:"sustained_samples"`
	TrendWindow        time.Duration `mapstructure:"trend_window"`
	SpikeThreshold     float64       `mapstructure:"spike_threshold"`
}

type CircuitConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetTimeoutMs   int `mapstructure:"reset_timeout_ms"`
	// Overrides tunes individual circuits by name. Zero fields inherit.
	Overrides map[string]CircuitOverride `mapstructure:"overrides"`
}

type CircuitOverride struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	ResetTimeoutMs   int `mapstructure:"reset_timeout_ms"`
}

func (c CircuitConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetTimeoutMs) * time.Millisecond
}

type ThrottleConfig struct {
	WindowMs          int                     `mapstructure:"window_ms"`
	MaxRequests       int                     `mapstructure:"max_requests"`
	LoadThreshold     float64                 `mapstructure:"load_threshold"`
	RecomputeInterval time.Duration           `mapstructure:"recompute_interval"`
	Rules             map[string]ThrottleRule `mapstructure:"rules"`
}

type ThrottleRule struct {
	WindowMs    int `mapstructure:"window_ms"`
	MaxRequests int `mapstructure:"max_requests"`
}

func (t ThrottleConfig) Window() time.Duration {
	return time.Duration(t.WindowMs) * time.Millisecond
}

type CacheConfig struct {
	TTLSeconds          int           `mapstructure:"ttl_seconds"`
	MaxSizeBytes        int64         `mapstructure:"max_size_bytes"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	ReportInterval      time.Duration `mapstructure:"report_interval"`
	PreloadInterval     time.Duration `mapstructure:"preload_interval"`
}

type ScalerConfig struct {
	Type                 string        `mapstructure:"type"`
	MinInstances         int           `mapstructure:"min_instances"`
	MaxInstances         int           `mapstructure:"max_instances"`
	CooldownMs           int           `mapstructure:"cooldown_ms"`
	CPUThreshold         float64       `mapstructure:"cpu_threshold"`
	MemoryThreshold      float64       `mapstructure:"memory_threshold"`
	EvaluateInterval     time.Duration `mapstructure:"evaluate_interval"`
	ExecutionTimeout     time.Duration `mapstructure:"execution_timeout"`
	MinConfidence        float64       `mapstructure:"min_confidence"`
	ForecastHorizon      time.Duration `mapstructure:"forecast_horizon"`
	ThroughputPerReplica float64       `mapstructure:"throughput_per_replica"`
	InitialReplicas      int           `mapstructure:"initial_replicas"`
	ProvisionTime        time.Duration `mapstructure:"provision_time"`
	Kubeconfig           string        `mapstructure:"kubeconfig"`
	Namespace            string        `mapstructure:"namespace"`
	Deployment           string        `mapstructure:"deployment"`
}

func (s ScalerConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownMs) * time.Millisecond
}

type AlertConfig struct {
	WebhookURL     string            `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration     `mapstructure:"webhook_timeout"`
	WebhookHeaders map[string]string `mapstructure:"webhook_headers"`
}

type APIConfig struct {
	Port                 int           `mapstructure:"port"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	JWTSecret            string        `mapstructure:"jwt_secret"`
	JWTDuration          time.Duration `mapstructure:"jwt_duration"`
	OperatorUser         string        `mapstructure:"operator_user"`
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"`
	LoginRatePerMinute   int           `mapstructure:"login_rate_per_minute"`
	LoginBurst           int           `mapstructure:"login_burst"`
	DefaultLimit         int           `mapstructure:"default_limit"`
	MaxLimit             int           `mapstructure:"max_limit"`
	CORS                 CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type WebSocketConfig struct {
	MaxConnections  int           `mapstructure:"max_connections"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	BroadcastBuffer int           `mapstructure:"broadcast_buffer"`
	ClientBuffer    int           `mapstructure:"client_buffer"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	// PersistSeverity is the lowest severity written to control_events.
	PersistSeverity string `mapstructure:"persist_severity"`
}
