package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile represents a per-environment configuration profile.
// Profiles layer on top of the env-var Config: anything a profile sets
// overrides the environment default.
type DeploymentProfile struct {
	Name      string         `yaml:"name" json:"name"`
	Code      string         `yaml:"code" json:"code"`
	Tracker   TrackerConfig  `yaml:"tracker" json:"tracker"`
	Decisions DecisionConfig `yaml:"decisions" json:"decisions"`
	Ticketing TicketConfig   `yaml:"ticketing" json:"ticketing"`
}

// TrackerConfig controls the rule source per environment.
type TrackerConfig struct {
	Path         string `yaml:"path" json:"path"`
	Sheet        string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
	SyncOnStart  bool   `yaml:"sync_on_start" json:"sync_on_start"`
	WatchSeconds int    `yaml:"watch_seconds,omitempty" json:"watch_seconds,omitempty"`
}

// DecisionConfig holds per-environment evaluation knobs.
type DecisionConfig struct {
	DryRun bool `yaml:"dry_run" json:"dry_run"` // evaluate but skip side effects
}

// TicketConfig controls the ticket sink per environment.
type TicketConfig struct {
	Endpoint   string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RatePerSec float64 `yaml:"rate_per_sec,omitempty" json:"rate_per_sec,omitempty"`
	BurstLimit int     `yaml:"burst_limit,omitempty" json:"burst_limit,omitempty"`
}

// LoadProfile loads a deployment profile YAML by environment code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*DeploymentProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*DeploymentProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile DeploymentProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_prod.yaml -> prod
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// Apply overlays the profile's settings onto the env-derived config.
func (p *DeploymentProfile) Apply(cfg *Config) {
	if p.Tracker.Path != "" {
		cfg.TrackerPath = p.Tracker.Path
	}
	if p.Tracker.Sheet != "" {
		cfg.TrackerSheet = p.Tracker.Sheet
	}
	if p.Ticketing.Endpoint != "" {
		cfg.TicketEndpoint = p.Ticketing.Endpoint
	}
	if p.Ticketing.RatePerSec > 0 {
		cfg.TicketRate = p.Ticketing.RatePerSec
	}
	if p.Ticketing.BurstLimit > 0 {
		cfg.TicketBurst = p.Ticketing.BurstLimit
	}
	if p.Decisions.DryRun {
		cfg.DryRun = true
	}
}
