package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/hpungsan/clipnest/internal/config"
	"github.com/hpungsan/clipnest/internal/rules"
)

// Settings holds the pipeline's tunables. Each value is guarded on its own
// so a rule update never waits on a monitoring toggle.
type Settings struct {
	minLength   atomic.Int64
	monitoring  atomic.Bool
	persistence atomic.Bool

	rulesMu sync.RWMutex
	rules   *rules.Set
}

// NewSettings seeds Settings from cfg.
func NewSettings(cfg *config.Config) *Settings {
	s := &Settings{}
	s.Apply(cfg)
	return s
}

// Apply copies cfg's pipeline values in.
func (s *Settings) Apply(cfg *config.Config) {
	s.SetMinLength(cfg.MinLength())
	s.SetMonitoring(cfg.Monitoring())
	s.SetPersistence(cfg.Persistence())
	s.SetRules(cfg.Rules)
}

func (s *Settings) MinLength() int {
	return int(s.minLength.Load())
}

func (s *Settings) SetMinLength(n int) {
	if n < 0 {
		n = 0
	}
	s.minLength.Store(int64(n))
}

func (s *Settings) Monitoring() bool {
	return s.monitoring.Load()
}

func (s *Settings) SetMonitoring(on bool) {
	s.monitoring.Store(on)
}

func (s *Settings) Persistence() bool {
	return s.persistence.Load()
}

func (s *Settings) SetPersistence(on bool) {
	s.persistence.Store(on)
}

// Rules returns the compiled rule set. Never nil.
func (s *Settings) Rules() *rules.Set {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	if s.rules == nil {
		return rules.Compile(nil)
	}
	return s.rules
}

// SetRules compiles and installs list, returning the compiled set so the
// caller can report patterns that failed to compile.
func (s *Settings) SetRules(list []rules.Rule) *rules.Set {
	set := rules.Compile(list)
	s.rulesMu.Lock()
	s.rules = set
	s.rulesMu.Unlock()
	return set
}
