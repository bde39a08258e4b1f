// Package history provides an undo/redo stack of reversible edit commands.
package history

import (
	"errors"
	"sync"
)

// DefaultMaxEntries caps the undo stack.
const DefaultMaxEntries = 50

var (
	// ErrNothingToUndo is returned by Undo on an empty undo stack.
	ErrNothingToUndo = errors.New("history: nothing to undo")
	// ErrNothingToRedo is returned by Redo on an empty redo stack.
	ErrNothingToRedo = errors.New("history: nothing to redo")
)

// Command is a reversible edit.
type Command interface {
	ID() string
	Description() string
	Execute() error
	Undo() error
}

// Entry summarises a command for display.
type Entry struct {
	ID          string
	Description string
}

// Op names the stack operation behind a Change.
type Op string

const (
	OpExecute Op = "execute"
	OpUndo    Op = "undo"
	OpRedo    Op = "redo"
	OpClear   Op = "clear"
)

// Change describes one stack mutation. Entry is the affected command and is
// empty for OpClear.
type Change struct {
	Op    Op
	Entry Entry
}

// Stack holds executed and undone commands.
type Stack struct {
	mu     sync.Mutex
	undo   []Command
	redo   []Command
	max    int
	notify func(Change)
}

// Option configures a Stack.
type Option func(*Stack)

// WithMaxEntries sets how many commands can be undone.
func WithMaxEntries(n int) Option {
	return func(s *Stack) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithNotify registers a callback run after every change.
func WithNotify(fn func(Change)) Option {
	return func(s *Stack) { s.notify = fn }
}

// New creates an empty stack.
func New(opts ...Option) *Stack {
	s := &Stack{max: DefaultMaxEntries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs cmd and records it. The redo stack is cleared. When the undo
// stack exceeds its cap the oldest command is dropped.
func (s *Stack) Execute(cmd Command) error {
	if err := cmd.Execute(); err != nil {
		return err
	}
	s.mu.Lock()
	s.undo = append(s.undo, cmd)
	s.redo = nil
	if len(s.undo) > s.max {
		s.undo = append(s.undo[:0], s.undo[len(s.undo)-s.max:]...)
	}
	s.mu.Unlock()
	s.changed(OpExecute, cmd)
	return nil
}

// Undo reverts the most recent command.
func (s *Stack) Undo() error {
	s.mu.Lock()
	n := len(s.undo)
	if n == 0 {
		s.mu.Unlock()
		return ErrNothingToUndo
	}
	cmd := s.undo[n-1]
	s.mu.Unlock()

	if err := cmd.Undo(); err != nil {
		return err
	}
	s.mu.Lock()
	s.undo = s.undo[:n-1]
	s.redo = append(s.redo, cmd)
	s.mu.Unlock()
	s.changed(OpUndo, cmd)
	return nil
}

// Redo re-applies the most recently undone command.
func (s *Stack) Redo() error {
	s.mu.Lock()
	n := len(s.redo)
	if n == 0 {
		s.mu.Unlock()
		return ErrNothingToRedo
	}
	cmd := s.redo[n-1]
	s.mu.Unlock()

	if err := cmd.Execute(); err != nil {
		return err
	}
	s.mu.Lock()
	s.redo = s.redo[:n-1]
	s.undo = append(s.undo, cmd)
	s.mu.Unlock()
	s.changed(OpRedo, cmd)
	return nil
}

// CanUndo reports whether Undo has a command to revert.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 0
}

// CanRedo reports whether Redo has a command to re-apply.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// Entries returns both stacks, oldest first.
func (s *Stack) Entries() (undo, redo []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entries(s.undo), entries(s.redo)
}

// Clear drops all recorded commands.
func (s *Stack) Clear() {
	s.mu.Lock()
	s.undo, s.redo = nil, nil
	s.mu.Unlock()
	s.changed(OpClear, nil)
}

func (s *Stack) changed(op Op, cmd Command) {
	if s.notify == nil {
		return
	}
	c := Change{Op: op}
	if cmd != nil {
		c.Entry = Entry{ID: cmd.ID(), Description: cmd.Description()}
	}
	s.notify(c)
}

func entries(cmds []Command) []Entry {
	out := make([]Entry, len(cmds))
	for i, c := range cmds {
		out[i] = Entry{ID: c.ID(), Description: c.Description()}
	}
	return out
}
