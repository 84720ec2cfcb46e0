package config

import (
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// FeatureFlags manages feature toggles with per-user gradual rollout.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent (0-100) assigns users by a hash of their ID.
	RolloutPercent int
}

// FeatureContext identifies the user a flag is evaluated for.
type FeatureContext struct {
	UserID string
}

// Predefined feature flag names.
const (
	FeatureStreaks         = "progress.streaks"      // streak tracking on every activity
	FeatureAchievements    = "progress.achievements" // achievement evaluation after XP
	FeatureOverviewCache   = "cache.overview"        // Redis overview cache
	FeatureEventForwarding = "events.forwarding"     // Kafka forwarding of domain events
)

// LoadFeatureFlags builds the flags and applies overrides from v.
// Format: FEATURE_<NAME>=true|false|<percent>, e.g. FEATURE_CACHE_OVERVIEW=false.
func LoadFeatureFlags(v *viper.Viper) *FeatureFlags {
	ff := NewFeatureFlags()
	if v == nil {
		return ff
	}

	for name, feature := range ff.features {
		val := strings.TrimSpace(v.GetString(featureNameToKey(name)))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
	return ff
}

// NewFeatureFlags returns the flags with their defaults.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}

	ff.add(FeatureStreaks, "Track daily streaks", true)
	ff.add(FeatureAchievements, "Evaluate and award achievements", true)
	ff.add(FeatureOverviewCache, "Cache progress overviews in Redis", true)
	ff.add(FeatureEventForwarding, "Forward progress events to Kafka", false)
	return ff
}

func (ff *FeatureFlags) add(name, description string, enabled bool) {
	percent := 0
	if enabled {
		percent = 100
	}
	ff.features[name] = &Feature{Name: name, Description: description, Enabled: enabled, RolloutPercent: percent}
}

// featureNameToKey converts a feature name to its viper key.
// "cache.overview" -> "feature_cache_overview" (env FEATURE_CACHE_OVERVIEW).
func featureNameToKey(name string) string {
	return "feature_" + strings.ReplaceAll(name, ".", "_")
}

// IsEnabled checks if a feature is enabled. A nil ctx evaluates the flag globally:
// partial rollouts count as enabled.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	return ff.isEnabled(featureName, ctx)
}

func (ff *FeatureFlags) isEnabled(featureName string, ctx *FeatureContext) bool {
	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return inRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// inRollout hashes user and feature so a user keeps its bucket.
func inRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(featureName))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
