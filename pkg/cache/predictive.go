package cache

import (
	"math/rand"
	"regexp"
	"sync"

	"github.com/rs/zerolog"

	cacheerrors "github.com/tiercache/tiercache/pkg/errors"
)

// PatternConfig describes one predictive prefetch rule: keys matching
// Match have the keys built from Templates warmed opportunistically.
// Templates reference capture groups with $1, $2 or named groups with
// ${name}. Confidence in [0,1] is the probability each related key is
// actually fetched.
type PatternConfig struct {
	Match      string   `yaml:"match"`
	Templates  []string `yaml:"templates"`
	Confidence float64  `yaml:"confidence"`
}

type compiledPattern struct {
	re         *regexp.Regexp
	templates  []string
	confidence float64
}

// prefetchEngine matches accessed keys against configured patterns and
// schedules background lookups for statistically related keys. It never
// blocks the triggering request; lookups ride the worker pool and their
// promotion side effects warm the faster tiers.
type prefetchEngine struct {
	patterns []compiledPattern
	fetch    func(key string)
	logger   zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// chance is overridable for deterministic tests.
	chance func() float64
}

func newPrefetchEngine(configs []PatternConfig, fetch func(key string), logger zerolog.Logger) (*prefetchEngine, error) {
	patterns := make([]compiledPattern, 0, len(configs))
	for _, cfg := range configs {
		re, err := regexp.Compile(cfg.Match)
		if err != nil {
			return nil, cacheerrors.Wrap(cacheerrors.ErrCodeInvalidConfig, "invalid prefetch pattern", err)
		}
		if cfg.Confidence < 0 || cfg.Confidence > 1 {
			return nil, cacheerrors.Newf(cacheerrors.ErrCodeInvalidConfig,
				"prefetch confidence %v outside [0,1]", cfg.Confidence)
		}
		patterns = append(patterns, compiledPattern{
			re:         re,
			templates:  cfg.Templates,
			confidence: cfg.Confidence,
		})
	}

	e := &prefetchEngine{
		patterns: patterns,
		fetch:    fetch,
		logger:   logger,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	e.chance = e.randomChance
	return e, nil
}

func (e *prefetchEngine) randomChance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// onHit expands the first matching pattern for key and schedules fetches
// for the related keys, each gated by the pattern's confidence.
func (e *prefetchEngine) onHit(key string) {
	for _, p := range e.patterns {
		idx := p.re.FindStringSubmatchIndex(key)
		if idx == nil {
			continue
		}

		for _, tmpl := range p.templates {
			related := string(p.re.ExpandString(nil, tmpl, key, idx))
			if related == "" || related == key {
				continue
			}
			if e.chance() >= p.confidence {
				continue
			}
			e.logger.Debug().Str("key", key).Str("related", related).Msg("prefetch scheduled")
			e.fetch(related)
		}
		return
	}
}
