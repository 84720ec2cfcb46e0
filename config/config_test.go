package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvTest, cfg.App.Env)
	assert.Equal(t, "Asia/Jerusalem", cfg.App.Location.String())
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 5*time.Second, cfg.Storage.SQLite.BusyTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Address())
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Progress.RecentActivity)
	assert.Equal(t, 2, cfg.Progress.MaxAttempts)
	assert.True(t, cfg.Features.IsEnabled(FeatureStreaks, nil))
	assert.False(t, cfg.Features.IsEnabled(FeatureEventForwarding, nil))
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_POSTGRES_URL", "postgres://u:p@db:5432/progress")
	t.Setenv("STORAGE_POSTGRES_MAX_CONNS", "25")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_OVERVIEW_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("WORKER_EXPIRE_GOALS_INTERVAL", "5m")
	t.Setenv("FEATURE_EVENTS_FORWARDING", "true")
	t.Setenv("FEATURE_PROGRESS_ACHIEVEMENTS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/progress", cfg.Storage.Postgres.URL)
	assert.Equal(t, int32(25), cfg.Storage.Postgres.MaxConns)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Redis.OverviewTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.Worker.ExpireGoalsInterval)
	assert.True(t, cfg.Features.IsEnabled(FeatureEventForwarding, nil))
	assert.False(t, cfg.Features.IsEnabled(FeatureAchievements, nil))
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.ErrorContains(t, err, "APP_TIMEZONE")
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{
		App:      AppConfig{Env: "qa"},
		Storage:  StorageConfig{Driver: "mysql"},
		HTTP:     HTTPConfig{Port: 70000},
		Worker:   WorkerConfig{BatchSize: 0},
		Progress: ProgressConfig{RecentActivity: 5, MaxAttempts: 0},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"APP_ENV", "STORAGE_DRIVER", "HTTP_PORT", "WORKER_BATCH_SIZE", "PROGRESS_MAX_ATTEMPTS"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidate_MemoryDriverInProduction(t *testing.T) {
	cfg := &Config{
		App:      AppConfig{Env: EnvProduction},
		Storage:  StorageConfig{Driver: DriverMemory},
		HTTP:     HTTPConfig{Port: 8080},
		Worker:   WorkerConfig{BatchSize: 10},
		Progress: ProgressConfig{RecentActivity: 5, MaxAttempts: 2},
	}
	assert.ErrorContains(t, cfg.Validate(), "memory driver")
}

func TestFeatureFlags_Rollout(t *testing.T) {
	v := viper.New()
	v.Set("feature_cache_overview", "30")
	ff := LoadFeatureFlags(v)

	assert.True(t, ff.IsEnabled(FeatureOverviewCache, nil))

	enabled := 0
	for i := 0; i < 1000; i++ {
		ctx := &FeatureContext{UserID: fmt.Sprintf("user-%d", i)}
		if ff.IsEnabled(FeatureOverviewCache, ctx) {
			enabled++
		}
		// Bucketing is stable per user.
		assert.Equal(t, ff.IsEnabled(FeatureOverviewCache, ctx), ff.IsEnabled(FeatureOverviewCache, ctx))
	}
	assert.InDelta(t, 300, enabled, 80)
}

func TestFeatureFlags_RuntimeChanges(t *testing.T) {
	ff := NewFeatureFlags()
	ctx := &FeatureContext{UserID: "u-1"}
	assert.True(t, ff.IsEnabled(FeatureStreaks, ctx))

	require.NoError(t, ff.SetRolloutPercent(FeatureEventForwarding, 100))
	assert.True(t, ff.IsEnabled(FeatureEventForwarding, ctx))

	require.NoError(t, ff.DisableFeature(FeatureStreaks))
	assert.False(t, ff.IsEnabled(FeatureStreaks, ctx))
	assert.False(t, ff.IsEnabled(FeatureStreaks, nil))
	assert.False(t, ff.GetAllFeatures()[FeatureStreaks].Enabled)

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureStreaks, 101), ErrInvalidRolloutPercent)
	assert.False(t, ff.IsEnabled("nope", nil))
}
