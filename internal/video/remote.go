package video

import "sync"

type DirectiveKind string

const (
	DirectiveSeek      DirectiveKind = "seek"
	DirectivePlay      DirectiveKind = "play"
	DirectivePause     DirectiveKind = "pause"
	DirectiveStep      DirectiveKind = "step"
	DirectiveRate      DirectiveKind = "rate"
	DirectiveConstrain DirectiveKind = "constrain"
)

// Directive is one playback instruction for the browser-side video element.
type Directive struct {
	Kind         DirectiveKind `json:"kind"`
	Time         float64       `json:"time,omitempty"`
	Rate         float64       `json:"rate,omitempty"`
	Direction    int           `json:"direction,omitempty"`
	IgnoreBounds bool          `json:"ignore_bounds,omitempty"`
	Constraint   *Constraint   `json:"constraint,omitempty"`
}

// Remote is a Player for a video element that lives in the client. It mirrors
// the playback state the client last reported and queues the directives a
// transition issued so the HTTP response can carry them back in order.
type Remote struct {
	mu         sync.Mutex
	now        float64
	rate       float64
	playing    bool
	constraint Constraint
	frameStep  float64
	queue      []Directive
}

func NewRemote(frameStep float64) *Remote {
	return &Remote{rate: 1, frameStep: frameStep}
}

// Observe records the client's sampled playback position.
func (r *Remote) Observe(t float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = t
}

func (r *Remote) Seek(t float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t < 0 {
		t = 0
	}
	r.now = t
	r.queue = append(r.queue, Directive{Kind: DirectiveSeek, Time: t})
	return nil
}

func (r *Remote) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = true
	r.queue = append(r.queue, Directive{Kind: DirectivePlay})
	return nil
}

func (r *Remote) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
	r.queue = append(r.queue, Directive{Kind: DirectivePause})
	return nil
}

func (r *Remote) StepFrame(dir FrameDirection, ignoreBounds bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.now + float64(dir)*r.frameStep
	if !ignoreBounds && r.constraint.Enabled {
		if next < r.constraint.StartTime {
			next = r.constraint.StartTime
		}
		if next > r.constraint.EndTime {
			next = r.constraint.EndTime
		}
	}
	if next < 0 {
		next = 0
	}
	r.now = next
	r.playing = false
	r.queue = append(r.queue, Directive{Kind: DirectiveStep, Time: next, Direction: int(dir), IgnoreBounds: ignoreBounds})
	return nil
}

func (r *Remote) CurrentTime() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

func (r *Remote) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rate
}

func (r *Remote) SetRate(rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
	r.queue = append(r.queue, Directive{Kind: DirectiveRate, Rate: rate})
	return nil
}

func (r *Remote) Constrain(c Constraint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constraint = c
	r.queue = append(r.queue, Directive{Kind: DirectiveConstrain, Constraint: &c})
	return nil
}

func (r *Remote) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Drain returns and clears the queued directives.
func (r *Remote) Drain() []Directive {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.queue
	r.queue = nil
	return out
}
