package core

import (
	"errors"
	"sync"
)

// ErrUnknownCommand is returned by Dispatch for an unregistered ID or a
// response ID.
var ErrUnknownCommand = errors.New("unknown command")

// UnknownCommandError names the ID Dispatch could not run.
type UnknownCommandError struct {
	ID uint16
}

func (e *UnknownCommandError) Error() string {
	return ErrUnknownCommand.Error() + " " + itoa(int(e.ID))
}

func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

// CommandHandler decodes its own arguments from the front of data.
type CommandHandler func(data *[]byte) error

// Command is one entry of the data dictionary. Responses (MCU to host) have
// no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "addr=%c count=%c"
	Handler CommandHandler
}

// Text is the dictionary key: name followed by the format, if any.
func (c *Command) Text() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry hands out IDs in registration order.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	byName   map[string]*Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		byName: make(map[string]*Command),
	}
}

// Register adds a command and returns its ID. Registering a name twice
// returns the first ID and keeps the first handler.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byName[name]; ok {
		return c.ID
	}
	c := &Command{
		ID:      uint16(len(r.commands)),
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.commands = append(r.commands, c)
	r.byName[name] = c
	return c.ID
}

// RegisterResponse adds a message the firmware sends to the host.
func (r *CommandRegistry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

// Lookup finds a command by ID.
func (r *CommandRegistry) Lookup(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// LookupName finds a command by name.
func (r *CommandRegistry) LookupName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler registered for id.
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	c, ok := r.Lookup(id)
	if !ok || c.Handler == nil {
		return &UnknownCommandError{ID: id}
	}
	return c.Handler(data)
}

// CommandsAndResponses splits the registry into the two dictionary maps,
// keyed by Text.
func (r *CommandRegistry) CommandsAndResponses() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, c := range r.commands {
		if c.Handler != nil {
			commands[c.Text()] = int(c.ID)
		} else {
			responses[c.Text()] = int(c.ID)
		}
	}
	return commands, responses
}
