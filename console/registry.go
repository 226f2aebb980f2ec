package console

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownCommand is returned for names not in the registry
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUsage is returned when a command gets the wrong arguments
	ErrUsage = errors.New("usage")
)

// Handler runs a command with its arguments and writes the reply to w
type Handler func(args []string, w io.Writer) error

// Command represents an operator command
type Command struct {
	Name    string
	Usage   string // Argument synopsis, e.g. "[mm]"
	Help    string
	Handler Handler
}

// Registry holds all registered commands
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	order    []string
	help     string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
	}
}

// Register adds a command. A name registered twice keeps the first handler.
func (r *Registry) Register(name, usage, help string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		return
	}
	r.commands[name] = &Command{
		Name:    name,
		Usage:   usage,
		Help:    help,
		Handler: handler,
	}
	r.order = append(r.order, name)
	r.rebuildHelp()
}

// Lookup retrieves a command by name
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Count returns the number of registered commands
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Names returns the registered command names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Help returns one line per command in registration order
func (r *Registry) Help() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.help
}

// Dispatch splits line into words and calls the named command
func (r *Registry) Dispatch(line string, w io.Writer) error {
	words, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "parse command line")
	}
	if len(words) == 0 {
		return nil
	}

	cmd, ok := r.Lookup(strings.ToLower(words[0]))
	if !ok {
		return errors.Wrap(ErrUnknownCommand, words[0])
	}
	return cmd.Handler(words[1:], w)
}

// rebuildHelp must be called with the lock held
func (r *Registry) rebuildHelp() {
	var b strings.Builder
	for _, name := range r.order {
		cmd := r.commands[name]
		b.WriteString(cmd.Name)
		if cmd.Usage != "" {
			b.WriteString(" " + cmd.Usage)
		}
		if cmd.Help != "" {
			b.WriteString(" - " + cmd.Help)
		}
		b.WriteString("\n")
	}
	r.help = b.String()
}
