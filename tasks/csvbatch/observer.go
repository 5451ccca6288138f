package csvbatch

import "sync"

// Observer receives one-way notifications from a running job.
type Observer interface {
	Progress(percent int)
	Log(message string)
	Completed()
}

type EventKind int

const (
	EventProgress EventKind = iota
	EventLog
	EventCompleted
)

// Event is one notification delivered by a ChannelObserver.
type Event struct {
	Kind    EventKind
	Percent int
	Message string
}

// ChannelObserver forwards notifications to Events. The channel is closed after Completed.
type ChannelObserver struct {
	Events chan Event

	mu     sync.Mutex
	closed bool
}

func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{Events: make(chan Event, buffer)}
}

func (o *ChannelObserver) Progress(percent int) { o.send(Event{Kind: EventProgress, Percent: percent}) }

func (o *ChannelObserver) Log(message string) { o.send(Event{Kind: EventLog, Message: message}) }

func (o *ChannelObserver) Completed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.Events <- Event{Kind: EventCompleted}
	o.closed = true
	close(o.Events)
}

func (o *ChannelObserver) send(event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.Events <- event
}

// onceObserver guarantees a single Completed notification.
type onceObserver struct {
	Observer
	once sync.Once
}

func (o *onceObserver) Completed() {
	o.once.Do(o.Observer.Completed)
}

// nopObserver drops everything.
type nopObserver struct{}

func (nopObserver) Progress(int) {}
func (nopObserver) Log(string)   {}
func (nopObserver) Completed()   {}
