package player

import "sync"

// EventType tags a progress notification.
type EventType string

// Progress notification types, emitted in execution order.
const (
	EventStarted            EventType = "started"
	EventStepStarted        EventType = "step.started"
	EventStepCompleted      EventType = "step.completed"
	EventStepFailed         EventType = "step.failed"
	EventIterationCompleted EventType = "iteration.completed"
	EventPaused             EventType = "paused"
	EventResumed            EventType = "resumed"
	EventSpeedChanged       EventType = "speed.changed"
	EventStopped            EventType = "stopped"
	EventCompleted          EventType = "completed"
)

// Event carries enough state for a caller to render a progress bar
// without polling.
type Event struct {
	Type            EventType `json:"type"`
	MacroID         string    `json:"macro_id"`
	MacroName       string    `json:"macro_name"`
	StepIndex       int       `json:"step_index"`
	TotalSteps      int       `json:"total_steps"`
	Iteration       int       `json:"iteration"`
	TotalIterations int       `json:"total_iterations"`
	Speed           float64   `json:"speed"`
	Error           string    `json:"error,omitempty"`
}

// Subscription is a typed handle for one registered listener. Close is
// idempotent.
type Subscription interface {
	Close()
}

// listeners dispatches events synchronously in subscription order, so
// notifications arrive ordered exactly as the run produced them.
type listeners struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
	ord  []int
}

func (l *listeners) subscribe(fn func(Event)) Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs == nil {
		l.subs = make(map[int]func(Event))
	}
	id := l.next
	l.next++
	l.subs[id] = fn
	l.ord = append(l.ord, id)
	return &subscription{cancel: func() { l.remove(id) }}
}

func (l *listeners) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
	for i, v := range l.ord {
		if v == id {
			l.ord = append(l.ord[:i], l.ord[i+1:]...)
			break
		}
	}
}

func (l *listeners) emit(ev Event) {
	l.mu.Lock()
	fns := make([]func(Event), 0, len(l.ord))
	for _, id := range l.ord {
		if fn, ok := l.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Close() {
	s.once.Do(s.cancel)
}
