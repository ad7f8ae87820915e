package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/OldStager01/resilience-plane/pkg/database"
	"github.com/OldStager01/resilience-plane/pkg/models"
	"github.com/OldStager01/resilience-plane/pkg/validation"
)

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, errors.New("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, errors.New("app.log_level must be one of: debug, info, warn, error"))
	}

	switch c.Storage.Driver {
	case database.DriverNone, "":
		if c.Storage.SharedThrottle {
			errs = append(errs, errors.New("storage.shared_throttle requires a storage driver"))
		}
	case database.DriverPostgres:
		if c.Storage.Host == "" {
			errs = append(errs, errors.New("storage.host is required for postgres"))
		}
		if c.Storage.Port <= 0 || c.Storage.Port > 65535 {
			errs = append(errs, errors.New("storage.port must be between 1 and 65535"))
		}
		if c.Storage.Name == "" {
			errs = append(errs, errors.New("storage.name is required for postgres"))
		}
	case database.DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of: none, postgres, sqlite3 (got %q)", c.Storage.Driver))
	}

	if c.Storage.SampleRetention < 0 {
		errs = append(errs, errors.New("storage.sample_retention must not be negative"))
	}

	validCollectors := map[string]bool{"host": true, "http": true, "prometheus": true, "synthetic": true}
	if !validCollectors[c.Collector.Type] {
		errs = append(errs, errors.New("collector.type must be one of: host, http, prometheus, synthetic"))
	}
	if c.Collector.Type == "http" || c.Collector.Type == "prometheus" {
		if _, err := url.ParseRequestURI(c.Collector.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("collector.endpoint must be a valid URL: %w", err))
		}
	}
	if c.Collector.RetryAttempts < 0 {
		errs = append(errs, errors.New("collector.retry_attempts must not be negative"))
	}

	if c.Sampler.Interval <= 0 {
		errs = append(errs, errors.New("sampler.interval must be positive"))
	}
	if c.Collector.Timeout >= c.Sampler.Interval {
		errs = append(errs, errors.New("collector.timeout must be less than sampler.interval"))
	}
	if c.Sampler.HistoryCapacity <= 0 {
		errs = append(errs, errors.New("sampler.history_capacity must be positive"))
	}

	if c.Analyzer.CPUCritical <= c.Analyzer.CPUHigh {
		errs = append(errs, errors.New("analyzer.cpu_critical must be greater than cpu_high"))
	}
	if c.Analyzer.CPUHigh <= 0 || c.Analyzer.CPUHigh > 100 {
		errs = append(errs, errors.New("analyzer.cpu_high must be between 0 and 100"))
	}
	if c.Analyzer.MemoryCritical <= c.Analyzer.MemoryHigh {
		errs = append(errs, errors.New("analyzer.memory_critical must be greater than memory_high"))
	}

	if c.Circuit.FailureThreshold <= 0 {
		errs = append(errs, errors.New("circuit.failure_threshold must be positive"))
	}
	if c.Circuit.ResetTimeoutMs <= 0 {
		errs = append(errs, errors.New("circuit.reset_timeout_ms must be positive"))
	}
	for name, o := range c.Circuit.Overrides {
		if o.FailureThreshold < 0 || o.ResetTimeoutMs < 0 {
			errs = append(errs, fmt.Errorf("circuit.overrides.%s must not be negative", name))
		}
	}

	if c.Throttle.WindowMs <= 0 {
		errs = append(errs, errors.New("throttle.window_ms must be positive"))
	}
	if c.Throttle.MaxRequests <= 0 {
		errs = append(errs, errors.New("throttle.max_requests must be positive"))
	}
	if c.Throttle.LoadThreshold <= 0 || c.Throttle.LoadThreshold > 1 {
		errs = append(errs, errors.New("throttle.load_threshold must be in (0, 1]"))
	}
	for route, rule := range c.Throttle.Rules {
		if rule.MaxRequests <= 0 {
			errs = append(errs, fmt.Errorf("throttle.rules.%s.max_requests must be positive", route))
		}
	}

	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, errors.New("cache.ttl_seconds must be positive"))
	}
	if c.Cache.MaxSizeBytes <= 0 {
		errs = append(errs, errors.New("cache.max_size_bytes must be positive"))
	}

	validScalers := map[string]bool{"simulator": true, "kubernetes": true}
	if !validScalers[c.Scaler.Type] {
		errs = append(errs, errors.New("scaler.type must be one of: simulator, kubernetes"))
	}
	if c.Scaler.Type == "kubernetes" && c.Scaler.Deployment == "" {
		errs = append(errs, errors.New("scaler.deployment is required for kubernetes"))
	}
	if err := validation.ValidateReplicaBounds(c.Scaler.MinInstances, c.Scaler.MaxInstances); err != nil {
		errs = append(errs, fmt.Errorf("scaler.min_instances/max_instances: %w", err))
	}
	if c.Scaler.CooldownMs < 0 {
		errs = append(errs, errors.New("scaler.cooldown_ms must not be negative"))
	}
	if c.Scaler.MinConfidence < 0 || c.Scaler.MinConfidence > 1 {
		errs = append(errs, errors.New("scaler.min_confidence must be between 0 and 1"))
	}

	if c.Alert.WebhookURL != "" {
		if _, err := url.ParseRequestURI(c.Alert.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("alert.webhook_url must be a valid URL: %w", err))
		}
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}
	if c.API.JWTDuration <= 0 {
		errs = append(errs, errors.New("api.jwt_duration must be positive"))
	}

	if c.Events.PersistSeverity != "" && models.Severity(c.Events.PersistSeverity).Rank() == 0 &&
		c.Events.PersistSeverity != string(models.SeverityInfo) {
		errs = append(errs, errors.New("events.persist_severity must be a known severity"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}
