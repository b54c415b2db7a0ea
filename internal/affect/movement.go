package affect

import "math"

const (
	// centroidHistory is how many face-centre positions the tracker keeps.
	centroidHistory = 15
	// reversalEpsilon ignores sub-pixel jitter when counting direction changes.
	reversalEpsilon = 0.004
)

type centroid struct {
	x, y float64
}

// MovementTracker turns a stream of face-centre positions into the head
// movement signal the state mapper consumes. Positions are normalized to the
// frame (0..1 on each axis), so the signal is resolution independent.
//
// One tracker belongs to one session and is not safe for concurrent use;
// the session monitor serializes access.
type MovementTracker struct {
	history    []centroid
	lastSignal PoseSignal
	frames     int
}

// NewMovementTracker creates an empty tracker. With no history yet the head
// reads as stable: a brand-new session must not open in an alarmed state.
func NewMovementTracker() *MovementTracker {
	return &MovementTracker{
		history:    make([]centroid, 0, centroidHistory),
		lastSignal: PoseSignal{Stable: true},
	}
}

// Observe records the face centre for the current frame and returns the
// updated movement signal.
func (t *MovementTracker) Observe(cx, cy float64) PoseSignal {
	t.frames++
	t.history = append(t.history, centroid{x: cx, y: cy})
	if len(t.history) > centroidHistory {
		t.history = t.history[1:]
	}

	score := t.movementScore()
	t.lastSignal = PoseSignal{
		MovementScore:    score,
		DirectionChanges: t.directionChanges(),
		Stable:           score < stableMovement,
	}
	return t.lastSignal
}

// Last returns the most recent movement signal without observing a new frame.
// Used on no-face frames, where movement evidence simply goes stale.
func (t *MovementTracker) Last() PoseSignal {
	return t.lastSignal
}

// Reset clears the history, e.g. after the face has been lost long enough
// that stitching old and new positions together would fake a jump.
func (t *MovementTracker) Reset() {
	t.history = t.history[:0]
	t.lastSignal = PoseSignal{Stable: true}
}

// movementScore is the mean frame-to-frame displacement over the history
// window, normalized by the frame diagonal (sqrt 2 in unit coordinates).
func (t *MovementTracker) movementScore() float64 {
	if len(t.history) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(t.history); i++ {
		dx := t.history[i].x - t.history[i-1].x
		dy := t.history[i].y - t.history[i-1].y
		total += math.Hypot(dx, dy)
	}
	mean := total / float64(len(t.history)-1)
	return clamp01(mean / math.Sqrt2 * 10) // scale so ~14% diagonal/frame saturates
}

// directionChanges counts horizontal direction reversals across the history.
// Rapid left-right scanning is the behavioral signature of confusion.
func (t *MovementTracker) directionChanges() int {
	if len(t.history) < 3 {
		return 0
	}
	changes := 0
	prevSign := 0
	for i := 1; i < len(t.history); i++ {
		dx := t.history[i].x - t.history[i-1].x
		if math.Abs(dx) < reversalEpsilon {
			continue
		}
		sign := 1
		if dx < 0 {
			sign = -1
		}
		if prevSign != 0 && sign != prevSign {
			changes++
		}
		prevSign = sign
	}
	return changes
}
