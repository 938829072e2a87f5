// pkg/event/event.go
package event

import (
	"sync"
)

// Type represents the type of event
type Type string

// Simulation event types
const (
	SimulationStarted Type = "simulation_started"
	SimulationStopped Type = "simulation_stopped"
	ModeChanged       Type = "mode_changed"
	ParticleCollision Type = "particle_collision"
	FrameCompleted    Type = "frame_completed"
	ViewerJoined      Type = "viewer_joined"
	ViewerLeft        Type = "viewer_left"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription is returned by Subscribe. Cancel removes the handler and is
// safe to call more than once.
type Subscription struct {
	ID     uint64
	Type   Type
	Cancel func()
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})

	return &Subscription{
		ID:   id,
		Type: eventType,
		Cancel: func() {
			b.Unsubscribe(eventType, id)
		},
	}
}

// Unsubscribe removes the handler registered under id
func (b *Bus) Unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id == id {
			// copy so a Publish iterating the old slice is unaffected
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, eventType)
			} else {
				b.handlers[eventType] = next
			}
			return
		}
	}
}

// HandlerCount returns the number of handlers subscribed to eventType
func (b *Bus) HandlerCount(eventType Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Publish sends an event to all subscribed handlers synchronously
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, r := range regs {
		r.handler(event)
	}
}

// ModeEvent is published when the detection strategy changes
type ModeEvent struct {
	BaseEvent
	From  string
	To    string
	Frame uint64
}

// NewModeEvent creates a new mode change event
func NewModeEvent(source interface{}, from, to string, frame uint64) *ModeEvent {
	return &ModeEvent{
		BaseEvent: BaseEvent{
			EventType: ModeChanged,
			Source:    source,
		},
		From:  from,
		To:    to,
		Frame: frame,
	}
}

// CollisionEvent contains information about a particle contact
type CollisionEvent struct {
	BaseEvent
	ParticleA   int
	ParticleB   int
	Penetration float64
	Frame       uint64
}

// NewCollisionEvent creates a new collision event
func NewCollisionEvent(source interface{}, a, b int, penetration float64, frame uint64) *CollisionEvent {
	return &CollisionEvent{
		BaseEvent: BaseEvent{
			EventType: ParticleCollision,
			Source:    source,
		},
		ParticleA:   a,
		ParticleB:   b,
		Penetration: penetration,
		Frame:       frame,
	}
}

// FrameEvent is published after every simulation step
type FrameEvent struct {
	BaseEvent
	Frame    uint64
	Contacts int
	Tests    int
}

// NewFrameEvent creates a new frame completed event
func NewFrameEvent(source interface{}, frame uint64, contacts, tests int) *FrameEvent {
	return &FrameEvent{
		BaseEvent: BaseEvent{
			EventType: FrameCompleted,
			Source:    source,
		},
		Frame:    frame,
		Contacts: contacts,
		Tests:    tests,
	}
}

// ViewerEvent is published when a stream viewer connects or disconnects
type ViewerEvent struct {
	BaseEvent
	ViewerID   string
	RemoteAddr string
}

// NewViewerEvent creates a new viewer event
func NewViewerEvent(eventType Type, source interface{}, viewerID, remoteAddr string) *ViewerEvent {
	return &ViewerEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		ViewerID:   viewerID,
		RemoteAddr: remoteAddr,
	}
}
