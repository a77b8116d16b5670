package service

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultGrace is how long the indicator stays on after the last Stop, so
// the render sink can catch up.
const DefaultGrace = 800 * time.Millisecond

var loadingHints = []string{
	"Calculating orbital trajectories ...",
	"Optimizing Delta-V requirements ...",
	"Making sure nosecone is pointing upwards ...",
	"Combobulating discombobulators ...",
	"Treating Kessler syndrome ...",
}

// Loading is the loading indicator. Start/Stop calls nest; the indicator
// turns off one grace period after the outermost Stop.
type Loading struct {
	grace    time.Duration
	onChange func(loading bool, hint string)

	mu      sync.Mutex
	active  int
	loading bool
	hint    string
	gen     uint64
}

// NewLoading returns an indicator calling onChange on every on/off
// transition. grace <= 0 turns it off immediately.
func NewLoading(grace time.Duration, onChange func(loading bool, hint string)) *Loading {
	if onChange == nil {
		onChange = func(bool, string) {}
	}
	return &Loading{grace: grace, onChange: onChange}
}

func (l *Loading) Start() {
	l.mu.Lock()
	l.active++
	l.gen++
	if l.loading {
		l.mu.Unlock()
		return
	}
	l.loading = true
	l.hint = loadingHints[rand.IntN(len(loadingHints))]
	hint := l.hint
	l.mu.Unlock()
	l.onChange(true, hint)
}

func (l *Loading) Stop() {
	l.mu.Lock()
	if l.active > 0 {
		l.active--
	}
	if l.active > 0 {
		l.mu.Unlock()
		return
	}
	gen := l.gen
	l.mu.Unlock()

	if l.grace <= 0 {
		l.finish(gen)
		return
	}
	time.AfterFunc(l.grace, func() { l.finish(gen) })
}

// finish turns the indicator off unless a Start happened since gen.
func (l *Loading) finish(gen uint64) {
	l.mu.Lock()
	if gen != l.gen || l.active > 0 || !l.loading {
		l.mu.Unlock()
		return
	}
	l.loading = false
	l.hint = ""
	l.mu.Unlock()
	l.onChange(false, "")
}

// State returns whether loading is on and the current hint.
func (l *Loading) State() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading, l.hint
}
