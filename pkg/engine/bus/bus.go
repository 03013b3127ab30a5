// Package bus implements the Event/Command Bus: single-consumer unbounded
// channels that decouple request-handling goroutines from the stateful
// handlers for statistics, filters, output, and scan bookkeeping. Commands
// are plain Go values dispatched through a type switch in each handler's
// run loop, the same shape as the engine's other single-purpose queues.
package bus

import (
	"github.com/pathscout/pathscout/pkg/engine/filters"
	"github.com/pathscout/pathscout/pkg/engine/response"
)

// ErrorKind categorizes a per-request failure for the statistics handler
// and, transitively, the Policy Engine.
type ErrorKind int

const (
	ErrorTimeout ErrorKind = iota
	ErrorConnection
	ErrorRequest
	ErrorOther
)

// Command is the sum type of every message a handler's channel accepts.
// Exactly one field is meaningful per command, selected by which
// constructor built it; handlers type-switch on the concrete type
// instead, since each variant below is its own named type.
type Command interface {
	isCommand()
}

type AddRequest struct{ ScanID string }

func (AddRequest) isCommand() {}

type AddError struct {
	ScanID string
	Kind   ErrorKind
}

func (AddError) isCommand() {}

type AddStatus struct {
	ScanID string
	Code   int
}

func (AddStatus) isCommand() {}

type AddFilter struct{ Filter filters.Filter }

func (AddFilter) isCommand() {}

type CreateBar struct {
	ScanID      string
	NumRequests int64
}

func (CreateBar) isCommand() {}

type LoadStats struct{ Path string }

func (LoadStats) isCommand() {}

type UpdateUsizeField struct {
	Field string
	N     uint64
}

func (UpdateUsizeField) isCommand() {}

type UpdateF64Field struct {
	Field string
	F     float64
}

func (UpdateF64Field) isCommand() {}

type TryRecursion struct{ Response *response.Response }

func (TryRecursion) isCommand() {}

type ScanInitialURLs struct{ URLs []string }

func (ScanInitialURLs) isCommand() {}

// Sync carries a one-shot reply channel: the receiving handler drains
// every command enqueued ahead of it, then sends true on Reply,
// guaranteeing a flush/ordering point for tests and for recursion
// decisions that must not race a still-in-flight report.
type Sync struct{ Reply chan<- bool }

func (Sync) isCommand() {}

// JoinTasks carries a reply channel that the handler signals once every
// currently-active scan has completed.
type JoinTasks struct{ Reply chan<- bool }

func (JoinTasks) isCommand() {}

// Exit terminates the handler's run loop.
type Exit struct{}

func (Exit) isCommand() {}

// Handler is a single-consumer command queue: one goroutine owns the
// receiving end and processes commands strictly in send order.
type Handler struct {
	commands chan Command
	done     chan struct{}
}

// NewHandler creates a Handler with an effectively unbounded queue (a
// large buffer sized for burst tolerance; sends never block the engine's
// hot path on a slow consumer).
func NewHandler() *Handler {
	return &Handler{
		commands: make(chan Command, 4096),
		done:     make(chan struct{}),
	}
}

// Send enqueues a command. It never blocks except under extreme, sustained
// backpressure (queue exhaustion), which indicates a stalled consumer.
func (h *Handler) Send(c Command) {
	h.commands <- c
}

// Sync blocks until every command sent before this call has been
// processed by Run's consumer loop.
func (h *Handler) Sync() {
	reply := make(chan bool, 1)
	h.Send(Sync{Reply: reply})
	<-reply
}

// Commands returns the receiving channel for use by a Run loop.
func (h *Handler) Commands() <-chan Command {
	return h.commands
}

// Done is closed once the handler's Run loop has processed an Exit
// command and returned.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// MarkDone closes the Done channel; Run implementations call this exactly
// once, after observing Exit.
func (h *Handler) MarkDone() {
	close(h.done)
}
