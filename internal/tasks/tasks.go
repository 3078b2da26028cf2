// Package tasks defines the completion contract between the exchange engine
// and an external scheduler, plus a small introspectable task list for wiring
// the per-step dependency graph. The engine only supplies task bodies; it
// never schedules.
package tasks

import (
	"errors"
	"fmt"
)

// Status is a task body's completion result. Incomplete is not an error: it
// asks the scheduler to re-invoke the task later.
type Status int

const (
	Incomplete Status = iota
	Complete
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Fn is a task body. A returned error is fatal to the run.
type Fn func() (Status, error)

// ID is an opaque handle returned at registration.
type ID int

var ErrUnknownTask = errors.New("tasks: unknown task id")

type node struct {
	id     ID
	name   string
	deps   []ID
	fn     Fn
	status Status
	done   bool
}

// List is an ordered, introspectable set of tasks with explicit dependencies.
type List struct {
	nodes []node
}

// NewList returns an empty task list.
func NewList() *List {
	return &List{}
}

// Add registers a task body with its prerequisite handles and returns its
// handle.
func (l *List) Add(name string, deps []ID, fn Fn) ID {
	id := ID(len(l.nodes))
	l.nodes = append(l.nodes, node{
		id:   id,
		name: name,
		deps: append([]ID(nil), deps...),
		fn:   fn,
	})
	return id
}

// Names returns task names in registration order.
func (l *List) Names() []string {
	out := make([]string, len(l.nodes))
	for i, n := range l.nodes {
		out[i] = n.name
	}
	return out
}

// Deps returns the prerequisite handles of id.
func (l *List) Deps(id ID) ([]ID, error) {
	if int(id) < 0 || int(id) >= len(l.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	return append([]ID(nil), l.nodes[id].deps...), nil
}

// Ready returns the tasks whose dependencies are all complete and which have
// not themselves completed.
func (l *List) Ready() []ID {
	var out []ID
	for _, n := range l.nodes {
		if n.done {
			continue
		}
		ready := true
		for _, d := range n.deps {
			if !l.nodes[d].done {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, n.id)
		}
	}
	return out
}

// Run invokes the body of id once. Complete marks the task done; Incomplete
// leaves it runnable.
func (l *List) Run(id ID) (Status, error) {
	if int(id) < 0 || int(id) >= len(l.nodes) {
		return Incomplete, fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	n := &l.nodes[id]
	st, err := n.fn()
	if err != nil {
		return st, err
	}
	n.status = st
	if st == Complete {
		n.done = true
	}
	return st, nil
}

// Status reports the result of the most recent Run of id this step,
// Incomplete if the task has not run since the last Reset.
func (l *List) Status(id ID) (Status, error) {
	if int(id) < 0 || int(id) >= len(l.nodes) {
		return Incomplete, fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	return l.nodes[id].status, nil
}

// Done reports whether every task has completed.
func (l *List) Done() bool {
	for _, n := range l.nodes {
		if !n.done {
			return false
		}
	}
	return true
}

// Reset marks every task runnable again for the next step.
func (l *List) Reset() {
	for i := range l.nodes {
		l.nodes[i].done = false
		l.nodes[i].status = Incomplete
	}
}
