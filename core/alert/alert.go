// Package alert is the audible feedback port. Playback is
// fire-and-forget: the engine never waits for a pattern to finish.
package alert

import "sync"

// Pattern identifies one of the fixed buzzer melodies.
type Pattern int

const (
	PatternStartup Pattern = iota
	PatternConfirm
	PatternError
	PatternDoseReady
	PatternDoseTaken
	PatternDoseMissed
)

var names = map[Pattern]string{
	PatternStartup:    "startup",
	PatternConfirm:    "confirm",
	PatternError:      "error",
	PatternDoseReady:  "dose_ready",
	PatternDoseTaken:  "dose_taken",
	PatternDoseMissed: "dose_missed",
}

func (p Pattern) String() string {
	if n, ok := names[p]; ok {
		return n
	}
	return "unknown"
}

// Player plays an alert pattern. Implementations must not block.
type Player interface {
	Play(Pattern)
}

// NopPlayer ignores all patterns.
type NopPlayer struct{}

func (NopPlayer) Play(Pattern) {}

// Recorder captures played patterns for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	Played []Pattern
}

func (r *Recorder) Play(p Pattern) {
	r.mu.Lock()
	r.Played = append(r.Played, p)
	r.mu.Unlock()
}

// Count returns how many times p was played.
func (r *Recorder) Count(p Pattern) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.Played {
		if q == p {
			n++
		}
	}
	return n
}
