// Package commands handles the in-chat slash commands. Commands act on the
// session and the role table; anything that is not a command is routed to
// roles by the caller.
package commands

import (
	"fmt"
	"strings"

	"chatcrew/internal/history"
	"chatcrew/internal/roles"
)

const helpText = `Available commands:
/help - Show this help message
/reset - Clear conversation history
/reload - Reload role configurations
/roles - List available roles
/load <name> - Load or create a named session (merges with the current history)
/quit or /exit - Exit the application

To address a role, mention it anywhere in your message.
Example: @Tech How do I implement a binary search?

You can also mention several roles in one message:
Example: @Tech @Creative how would you describe the internet?`

type roleDirectory interface {
	Reload() error
	List() []roles.Config
}

// Processor dispatches slash commands.
type Processor struct {
	store    *history.Store
	dir      roleDirectory
	commands map[string]func(args []string) string
}

// NewProcessor creates a processor bound to the session store and the role
// directory.
func NewProcessor(store *history.Store, dir roleDirectory) *Processor {
	p := &Processor{store: store, dir: dir}
	p.commands = map[string]func([]string) string{
		"/help":   p.cmdHelp,
		"/reset":  p.cmdReset,
		"/reload": p.cmdReload,
		"/roles":  p.cmdRoles,
		"/load":   p.cmdLoad,
	}
	return p
}

// IsCommand reports whether the input is a slash command.
func (p *Processor) IsCommand(msg string) bool {
	return strings.HasPrefix(strings.TrimSpace(msg), "/")
}

// Process runs the command and returns its response text.
func (p *Processor) Process(msg string) string {
	parts := strings.Fields(strings.TrimSpace(msg))
	if len(parts) == 0 {
		return ""
	}
	cmd := strings.ToLower(parts[0])
	handler, ok := p.commands[cmd]
	if !ok {
		return fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)
	}
	return handler(parts[1:])
}

func (p *Processor) cmdHelp([]string) string {
	return helpText
}

func (p *Processor) cmdReset([]string) string {
	p.store.Clear()
	return "Conversation history has been cleared."
}

func (p *Processor) cmdReload([]string) string {
	if err := p.dir.Reload(); err != nil {
		return fmt.Sprintf("Error reloading role configurations: %s", err)
	}
	return "Role configurations have been reloaded."
}

func (p *Processor) cmdRoles([]string) string {
	list := p.dir.List()
	if len(list) == 0 {
		return "No roles are currently configured."
	}
	var b strings.Builder
	b.WriteString("Available roles:\n")
	for _, r := range list {
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Description())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Processor) cmdLoad(args []string) string {
	if len(args) == 0 {
		return "Usage: /load <session-name>"
	}
	name := args[0]
	if !p.store.Load(name) {
		return fmt.Sprintf("Could not load session %q; the current history is unchanged.", name)
	}
	return fmt.Sprintf("Session %q loaded (%d messages).", name, p.store.Len())
}
