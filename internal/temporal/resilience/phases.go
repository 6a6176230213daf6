package resilience

import "time"

// PhaseCriticality determines how the workflow handles a stage whose
// activity retries are exhausted.
type PhaseCriticality int

const (
	// Critical phases fail the run.
	Critical PhaseCriticality = iota

	// Important phases degrade: the run continues and the result records
	// the partial outcome.
	Important

	// NonCritical phases are skipped and the run continues.
	NonCritical
)

// String returns a human-readable name for the criticality level.
func (c PhaseCriticality) String() string {
	switch c {
	case Critical:
		return "critical"
	case Important:
		return "important"
	case NonCritical:
		return "non-critical"
	default:
		return "unknown"
	}
}

// Phase names.
const (
	PhaseSearchNews   = "search_news"
	PhaseDeepResearch = "deep_research"
	PhaseDeepCrawl    = "deep_crawl"
	PhaseBrief        = "brief"
	PhaseDraft        = "draft"
	PhaseImage        = "image"
	PhasePersist      = "persist"
	PhaseGraphSync    = "graph_sync"
	PhaseStatus       = "status"
	PhaseEvent        = "event"
)

// PhaseConfig holds the workflow-level retry and criticality configuration
// of one stage. Activity retries come first; MaxRetries adds workflow-level
// retries on top of them and is zero for every default phase.
type PhaseConfig struct {
	Name              string
	Criticality       PhaseCriticality
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// backoffForAttempt computes the backoff duration for the given attempt (0-indexed).
func (p PhaseConfig) backoffForAttempt(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	return backoff
}

// DefaultPhaseConfigs returns the phase configuration of the article pipeline.
func DefaultPhaseConfigs() map[string]PhaseConfig {
	phase := func(name string, c PhaseCriticality) PhaseConfig {
		return PhaseConfig{
			Name:              name,
			Criticality:       c,
			InitialBackoff:    10 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        time.Minute,
		}
	}
	return map[string]PhaseConfig{
		PhaseSearchNews:   phase(PhaseSearchNews, Important),
		PhaseDeepResearch: phase(PhaseDeepResearch, Important),
		PhaseDeepCrawl:    phase(PhaseDeepCrawl, NonCritical),
		PhaseBrief:        phase(PhaseBrief, Critical),
		PhaseDraft:        phase(PhaseDraft, Critical),
		PhaseImage:        phase(PhaseImage, NonCritical),
		PhasePersist:      phase(PhasePersist, Critical),
		PhaseGraphSync:    phase(PhaseGraphSync, Important),
		PhaseStatus:       phase(PhaseStatus, NonCritical),
		PhaseEvent:        phase(PhaseEvent, NonCritical),
	}
}

// PhaseFor returns the default configuration of the named phase. Unknown
// phases are Critical.
func PhaseFor(name string) PhaseConfig {
	if cfg, ok := DefaultPhaseConfigs()[name]; ok {
		return cfg
	}
	return PhaseConfig{Name: name, Criticality: Critical}
}
