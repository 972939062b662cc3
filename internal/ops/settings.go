package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/errors"
	"github.com/hpungsan/clipnest/internal/pipeline"
	"github.com/hpungsan/clipnest/internal/rules"
)

// SettingsOutput is the live configuration seen by the pipeline.
type SettingsOutput struct {
	HistoryLimit       int          `json:"history_limit"`
	MinTextLength      int          `json:"min_text_length"`
	DedupWindowMinutes int          `json:"dedup_window_minutes"`
	MonitoringEnabled  bool         `json:"monitoring_enabled"`
	PersistenceEnabled bool         `json:"persistence_enabled"`
	Rules              []rules.Rule `json:"rules"`
	InvalidRules       []rules.Rule `json:"invalid_rules,omitempty"`
}

// GetSettings returns the current settings.
func GetSettings(p *pipeline.Pipeline) *SettingsOutput {
	set := p.Settings().Rules()
	return &SettingsOutput{
		HistoryLimit:       p.Store().Limit(),
		MinTextLength:      p.Settings().MinLength(),
		DedupWindowMinutes: int(p.Store().DedupWindow().Minutes()),
		MonitoringEnabled:  p.Settings().Monitoring(),
		PersistenceEnabled: p.Settings().Persistence(),
		Rules:              set.Rules(),
		InvalidRules:       set.Invalid(),
	}
}

// UpdateSettingsInput contains parameters for UpdateSettings.
// Nil fields are left unchanged.
type UpdateSettingsInput struct {
	HistoryLimit       *int
	MinTextLength      *int
	DedupWindowMinutes *int
	MonitoringEnabled  *bool
	PersistenceEnabled *bool
}

// UpdateSettings validates every field before changing anything, applies
// the change, and writes it to baseDir/config.json when baseDir is set.
// An invalid value leaves all settings untouched.
func UpdateSettings(ctx context.Context, p *pipeline.Pipeline, baseDir string, input UpdateSettingsInput) (*SettingsOutput, error) {
	if input.HistoryLimit != nil && *input.HistoryLimit <= 0 {
		return nil, errors.NewInvalidConfig("history_limit", "must be greater than 0")
	}
	if input.MinTextLength != nil && *input.MinTextLength < 0 {
		return nil, errors.NewInvalidConfig("min_text_length", "must not be negative")
	}
	if input.DedupWindowMinutes != nil && *input.DedupWindowMinutes < 0 {
		return nil, errors.NewInvalidConfig("dedup_window_minutes", "must not be negative")
	}

	cfg, err := loadConfig(baseDir)
	if err != nil {
		return nil, err
	}

	if input.HistoryLimit != nil {
		if err := p.Store().SetLimit(*input.HistoryLimit); err != nil {
			return nil, err
		}
		cfg.HistoryLimit = *input.HistoryLimit
	}
	if input.DedupWindowMinutes != nil {
		if err := p.Store().SetDedupWindow(time.Duration(*input.DedupWindowMinutes) * time.Minute); err != nil {
			return nil, err
		}
		cfg.DedupWindowMinutes = input.DedupWindowMinutes
	}
	if input.MinTextLength != nil {
		p.Settings().SetMinLength(*input.MinTextLength)
		cfg.MinTextLength = input.MinTextLength
	}
	if input.MonitoringEnabled != nil {
		p.Settings().SetMonitoring(*input.MonitoringEnabled)
		cfg.MonitoringEnabled = input.MonitoringEnabled
	}
	if input.PersistenceEnabled != nil {
		p.Settings().SetPersistence(*input.PersistenceEnabled)
		cfg.PersistenceEnabled = input.PersistenceEnabled
	}

	// A smaller limit may have evicted entries.
	if input.HistoryLimit != nil {
		p.Changed(ctx)
	}

	if err := saveConfig(baseDir, cfg); err != nil {
		return nil, err
	}
	return GetSettings(p), nil
}

// SetRulesInput contains parameters for SetRules.
type SetRulesInput struct {
	Rules []rules.Rule
}

// SetRulesOutput reports the installed rule count and the rules whose
// patterns did not compile. Those rules are kept but never match.
type SetRulesOutput struct {
	Count   int          `json:"count"`
	Invalid []rules.Rule `json:"invalid"`
}

// SetRules replaces the rule list.
func SetRules(p *pipeline.Pipeline, baseDir string, input SetRulesInput) (*SetRulesOutput, error) {
	for i, r := range input.Rules {
		if err := rules.Validate(r); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("rules[%d]: %v", i, err))
		}
	}

	cfg, err := loadConfig(baseDir)
	if err != nil {
		return nil, err
	}

	set := p.Settings().SetRules(input.Rules)
	cfg.Rules = set.Rules()
	if err := saveConfig(baseDir, cfg); err != nil {
		return nil, err
	}

	invalid := set.Invalid()
	if invalid == nil {
		invalid = []rules.Rule{}
	}
	return &SetRulesOutput{Count: len(input.Rules), Invalid: invalid}, nil
}

func loadConfig(baseDir string) (*config.Config, error) {
	if baseDir == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to load config: %w", err))
	}
	return cfg, nil
}

func saveConfig(baseDir string, cfg *config.Config) error {
	if baseDir == "" {
		return nil
	}
	if err := config.Save(baseDir, cfg); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to save config: %w", err))
	}
	return nil
}
