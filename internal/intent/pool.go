package intent

import (
	"math/rand"
	"time"
)

// Mood partitions the day for message selection.
type Mood string

const (
	MoodMorning   Mood = "morning"   // 05:00-11:59
	MoodAfternoon Mood = "afternoon" // 12:00-16:59
	MoodEvening   Mood = "evening"   // 17:00-21:59
	MoodNight     Mood = "night"     // otherwise
)

// MoodForHour maps a clock hour to a Mood.
func MoodForHour(hour int) Mood {
	switch {
	case hour >= 5 && hour < 12:
		return MoodMorning
	case hour >= 12 && hour < 17:
		return MoodAfternoon
	case hour >= 17 && hour < 22:
		return MoodEvening
	default:
		return MoodNight
	}
}

// VarietyPool selects suggestion messages with least-used weighting and
// last-message exclusion, so repeated suggestions do not feel canned.
//
// Pool choice: error_detected when the snapshot carries errors, long_idle
// past ten minutes of idle, otherwise the current time-of-day mood merged
// with the base pool. A minimum interval between messages is enforced; an
// empty return means "say nothing this time".
//
// Not safe for concurrent use; the proposer calls it from the tick loop only.
type VarietyPool struct {
	base     []string
	errors   []string
	longIdle []string
	moods    map[Mood][]string

	lastMessage string
	lastPickAt  time.Time
	usage       map[string]int
	minInterval time.Duration

	nowFn func() time.Time
	rng   *rand.Rand
}

// longIdleCutoff selects the long_idle pool.
const longIdleCutoff = 600

// NewVarietyPool builds the default Luna message pools.
func NewVarietyPool(minInterval time.Duration) *VarietyPool {
	return &VarietyPool{
		base: []string{
			"Sudah 5 menit idle nih, butuh bantuan?",
			"Lagi nyangkut? Aku bisa bantu cari solusi",
			"Kayaknya lagi mikir keras ya, mau diskusi?",
			"Mau aku rangkum progress hari ini?",
			"Lagi stuck? Yuk brainstorming bareng",
			"Butuh second opinion untuk kode ini?",
			"Mau aku bantu debug masalah ini?",
			"Kelihatannya lagi ribet, aku bisa support",
			"Udah lama idle, perlu assistance?",
			"Mau aku cari referensi buat masalah ini?",
			"Lagi nyari solusi? Aku bisa bantu explore",
			"Kayaknya ada yang ganjal, mau ku cek?",
			"Butuh fresh perspective? Aku ready",
			"Stuck di bagian mana? Cerita yuk",
			"Mau ku carikan docs atau contoh kode?",
		},
		errors: []string{
			"Ada error yang belum tertangani, mau aku bantu cek?",
			"Error-nya masih nongol? Yuk kita telusuri bareng",
			"Mau aku bantu baca stack trace-nya?",
			"Kayaknya ada yang merah tuh, perlu bantuan?",
		},
		longIdle: []string{
			"Udah 10 menit lebih idle, mau lanjut atau istirahat dulu?",
			"Lama juga diemnya, mau aku rangkum posisi terakhir?",
			"Masih di situ? Siapa tahu aku bisa bantu mulai lagi",
		},
		moods: map[Mood][]string{
			MoodMorning: {
				"Pagi! Mau mulai dari mana hari ini?",
				"Masih panas kopinya? Yuk gas pelan-pelan",
			},
			MoodAfternoon: {
				"Siang-siang gini enaknya beres-beresin yang gampang dulu",
				"Sudah setengah hari nih, mau review progress?",
			},
			MoodEvening: {
				"Sore-sore masih semangat? Aku standby kok",
				"Mau rapikan kerjaan sebelum tutup hari?",
			},
			MoodNight: {
				"Masih lembur? Jangan lupa istirahat ya",
				"Malam-malam stuck itu wajar, mau dibantu?",
			},
		},
		usage:       make(map[string]int),
		minInterval: minInterval,
		nowFn:       time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick returns a message for a suggest_help intent, or "" when the pool is
// empty or the minimum inter-message interval has not elapsed.
func (p *VarietyPool) Pick(errorCount, idleSeconds int) string {
	now := p.nowFn()
	if !p.lastPickAt.IsZero() && now.Sub(p.lastPickAt) < p.minInterval {
		return ""
	}

	pool := p.choosePool(errorCount, idleSeconds, now)
	if len(pool) == 0 {
		return ""
	}

	candidates := make([]string, 0, len(pool))
	for _, m := range pool {
		if m != p.lastMessage {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		// Excluding the last message emptied the set; reset.
		candidates = pool
	}

	msg := p.weightedPick(candidates)

	p.lastMessage = msg
	p.lastPickAt = now
	p.usage[msg]++
	return msg
}

func (p *VarietyPool) choosePool(errorCount, idleSeconds int, now time.Time) []string {
	if errorCount > 0 && len(p.errors) > 0 {
		return p.errors
	}
	if idleSeconds >= longIdleCutoff && len(p.longIdle) > 0 {
		return p.longIdle
	}
	mood := MoodForHour(now.Hour())
	merged := make([]string, 0, len(p.base)+len(p.moods[mood]))
	merged = append(merged, p.moods[mood]...)
	merged = append(merged, p.base...)
	return merged
}

// weightedPick prefers the least-used message: weight(m) = 1/(1+usage).
func (p *VarietyPool) weightedPick(candidates []string) string {
	var total float64
	weights := make([]float64, len(candidates))
	for i, m := range candidates {
		w := 1.0 / float64(1+p.usage[m])
		weights[i] = w
		total += w
	}

	r := p.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// Reset clears selection history. For tests.
func (p *VarietyPool) Reset() {
	p.lastMessage = ""
	p.lastPickAt = time.Time{}
	p.usage = make(map[string]int)
}
