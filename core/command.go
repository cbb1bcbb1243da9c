package core

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// CommandHandler runs one command. It decodes its own arguments from data
// and leaves data positioned after them.
type CommandHandler func(data *[]byte) error

// Command is one entry of the command dictionary. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument list, e.g. "mode=%c"
	Handler CommandHandler
}

// CommandRegistry assigns dense IDs in registration order. The host learns
// them from the dictionary, where line N describes ID N.
type CommandRegistry struct {
	mu         sync.RWMutex
	commands   []*Command
	byName     map[string]*Command
	dictionary strings.Builder
}

// NewCommandRegistry returns an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

// Register adds a command and returns its ID. Registering a name twice
// returns the first ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd, ok := r.byName[name]; ok {
		return cmd.ID
	}
	cmd := &Command{
		ID:      uint16(len(r.commands)),
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.commands = append(r.commands, cmd)
	r.byName[name] = cmd

	r.dictionary.WriteString(name)
	if format != "" {
		r.dictionary.WriteByte(' ')
		r.dictionary.WriteString(format)
	}
	r.dictionary.WriteByte('\n')
	return cmd.ID
}

// RegisterResponse registers a device to host message
func (r *CommandRegistry) RegisterResponse(name string, format string) uint16 {
	return r.Register(name, format, nil)
}

// GetCommand looks a command up by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// GetCommandByName looks a command up by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Count returns the number of commands and responses
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler registered for cmdID.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return errors.Errorf("unknown command ID: %d", cmdID)
	}
	if cmd.Handler == nil {
		return errors.Errorf("%s is a response, not a command", cmd.Name)
	}
	return cmd.Handler(data)
}

// GetDictionary returns one "name format" line per ID.
func (r *CommandRegistry) GetDictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dictionary.String()
}

// DictionaryChunk returns up to count bytes of the dictionary starting at
// offset. An empty chunk marks the end.
func (r *CommandRegistry) DictionaryChunk(offset uint32, count uint8) []byte {
	dict := r.GetDictionary()
	if offset >= uint32(len(dict)) {
		return nil
	}
	end := min(offset+uint32(count), uint32(len(dict)))
	return []byte(dict[offset:end])
}

// ParseDictionary maps command names to IDs.
func ParseDictionary(dict string) map[string]uint16 {
	ids := make(map[string]uint16)
	for i, line := range strings.Split(strings.TrimRight(dict, "\n"), "\n") {
		name, _, _ := strings.Cut(line, " ")
		if name == "" {
			continue
		}
		ids[name] = uint16(i)
	}
	return ids
}
