package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a timing-critical event for post-mortem analysis
type Event struct {
	Kind   uint8  // Event type code
	Clock  uint32 // Scheduler clock at event
	Value1 int32  // Context-dependent value
	Value2 int32  // Context-dependent value
}

// Event type codes
const (
	EvtArm      = 1 // Axis armed from idle
	EvtRetarget = 2 // Target changed while running
	EvtReverse  = 3 // Direction switched
	EvtStop     = 4 // Axis reached its target
	EvtFault    = 5 // Fault recorded
	EvtHome     = 6 // Homing finished
)

// EventRingSize is the number of events kept per ring
const EventRingSize = 32

// EventRing is a fixed-size ring of recent events. Record never allocates
// and is safe to call from a timer handler. Dump must only be called while
// the producer is quiet.
type EventRing struct {
	events [EventRingSize]Event
	head   uint8
	count  uint8
}

// Record captures an event, overwriting the oldest when full
func (r *EventRing) Record(kind uint8, clock uint32, v1, v2 int32) {
	idx := r.head
	r.events[idx] = Event{Kind: kind, Clock: clock, Value1: v1, Value2: v2}
	r.head = (idx + 1) % EventRingSize
	if r.count < EventRingSize {
		r.count++
	}
}

// Len returns the number of events held
func (r *EventRing) Len() int {
	return int(r.count)
}

// Snapshot returns the held events, oldest first
func (r *EventRing) Snapshot() []Event {
	out := make([]Event, 0, r.count)
	start := (int(r.head) + EventRingSize - int(r.count)) % EventRingSize
	for i := 0; i < int(r.count); i++ {
		out = append(out, r.events[(start+i)%EventRingSize])
	}
	return out
}

// Dump writes the held events through w, oldest first
func (r *EventRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}
	w("=== EVENTS (" + itoa(int(r.count)) + ") ===")
	for _, e := range r.Snapshot() {
		w(EventName(e.Kind) + " t=" + utoa(e.Clock) + " v1=" + itoa(int(e.Value1)) + " v2=" + itoa(int(e.Value2)))
	}
	w("=== END ===")
}

// EventName returns a short label for an event code
func EventName(kind uint8) string {
	switch kind {
	case EvtArm:
		return "ARM"
	case EvtRetarget:
		return "RETARGET"
	case EvtReverse:
		return "REVERSE"
	case EvtStop:
		return "STOP"
	case EvtFault:
		return "FAULT"
	case EvtHome:
		return "HOME"
	default:
		return "EVT" + itoa(int(kind))
	}
}
