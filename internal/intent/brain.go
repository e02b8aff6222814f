package intent

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orbit/internal/contexthub"
)

// Mode selects the proposer backend.
type Mode string

const (
	ModeOllama Mode = "ollama"
	ModeDummy  Mode = "dummy"
	ModeAuto   Mode = "auto"
)

// ParseMode normalises a config string; anything unrecognised means auto.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "ollama":
		return ModeOllama
	case "dummy":
		return ModeDummy
	default:
		return ModeAuto
	}
}

// unhealthyAfter marks the LLM path down after this many consecutive
// failures; further calls short-circuit to the fallback until a health
// check passes again.
const unhealthyAfter = 3

// Stats counts proposer activity.
type Stats struct {
	Total       int
	OllamaCalls int
	DummyCalls  int
	Failures    int
}

// Brain is the intent proposer: Ollama when healthy, deterministic fallback
// otherwise. Called from the tick loop only.
type Brain struct {
	mode     Mode
	ollama   *OllamaClient
	pool     *VarietyPool
	rng      *rand.Rand
	nowFn    func() time.Time
	logger   *zap.Logger
	failures int
	stats    Stats
}

// NewBrain wires the proposer. ollama may be nil for dummy mode.
func NewBrain(mode Mode, ollama *OllamaClient, pool *VarietyPool, logger *zap.Logger) *Brain {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Brain{
		mode:   mode,
		ollama: ollama,
		pool:   pool,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFn:  time.Now,
		logger: logger,
	}
	if mode == ModeDummy {
		b.ollama = nil
	}
	return b
}

// Propose maps a snapshot to an intent. Never returns an error: any LLM
// failure degrades this call to the fallback path.
func (b *Brain) Propose(ctx context.Context, snap contexthub.Snapshot) Intent {
	b.stats.Total++

	if b.ollama != nil {
		if b.failures >= unhealthyAfter {
			// Marked unhealthy; a passing health check re-arms the LLM path.
			if b.ollama.CheckHealth(ctx) {
				b.failures = 0
			}
		}
		if b.failures < unhealthyAfter && b.ollama.Available() {
			in, err := b.ollama.Generate(ctx, snap)
			if err == nil {
				b.failures = 0
				b.stats.OllamaCalls++
				b.logger.Info("intent via ollama",
					zap.String("kind", string(in.Kind)),
					zap.Float64("confidence", in.Confidence))
				return in
			}
			b.failures++
			b.stats.Failures++
			b.logger.Warn("ollama failed, degrading to fallback",
				zap.Int("consecutive_failures", b.failures), zap.Error(err))
		}
	}

	return b.proposeFallback(snap)
}

// Fallback rule: long idle in a development app earns a suggestion; anything
// else stays quiet.
func (b *Brain) proposeFallback(snap contexthub.Snapshot) Intent {
	b.stats.DummyCalls++

	app := strings.ToLower(snap.ActiveApp)
	coding := strings.Contains(app, "code") ||
		strings.Contains(app, "studio") ||
		strings.Contains(app, "python")

	if snap.IdleSeconds >= 300 && coding {
		msg := b.pool.Pick(snap.ErrorCount, snap.IdleSeconds)
		if msg != "" {
			conf := b.fallbackConfidence(snap)
			b.logger.Info("intent via fallback",
				zap.String("kind", string(KindSuggestHelp)),
				zap.Float64("confidence", conf))
			return Intent{
				ID:         uuid.NewString(),
				Kind:       KindSuggestHelp,
				Confidence: conf,
				Message:    msg,
				CreatedAt:  b.nowFn(),
			}
		}
	}

	b.logger.Debug("fallback: no interesting context")
	return None()
}

// fallbackConfidence: 0.70 base, idle and error bonuses, a little noise,
// clamped to [0.70, 0.90].
func (b *Brain) fallbackConfidence(snap contexthub.Snapshot) float64 {
	conf := 0.70
	switch {
	case snap.IdleSeconds >= 300:
		conf += 0.10
	case snap.IdleSeconds >= 180:
		conf += 0.05
	}
	if snap.ErrorCount > 0 {
		conf += 0.05
	}
	conf += b.rng.Float64()*0.06 - 0.03

	if conf < 0.70 {
		conf = 0.70
	}
	if conf > 0.90 {
		conf = 0.90
	}
	return conf
}

// Stats returns proposer counters plus backend health.
func (b *Brain) Stats() Stats {
	return b.stats
}

// OllamaAvailable reports whether the LLM path is currently live.
func (b *Brain) OllamaAvailable() bool {
	return b.ollama != nil && b.failures < unhealthyAfter && b.ollama.Available()
}
