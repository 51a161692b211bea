package tui

import (
	"fmt"
	"strings"
)

// Command names accepted at the ':' prompt.
const (
	CmdQuit    = "quit"
	CmdHelp    = "help"
	CmdChat    = "chat"
	CmdSearch  = "search"
	CmdInbox   = "inbox"
	CmdRefresh = "refresh"
)

var commandAliases = map[string]string{
	"q":       CmdQuit,
	"q!":      CmdQuit,
	"quit":    CmdQuit,
	"h":       CmdHelp,
	"help":    CmdHelp,
	"c":       CmdChat,
	"chat":    CmdChat,
	"open":    CmdChat,
	"s":       CmdSearch,
	"search":  CmdSearch,
	"inbox":   CmdInbox,
	"chats":   CmdInbox,
	"r":       CmdRefresh,
	"refresh": CmdRefresh,
}

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string, with or without the leading ':'.
// Aliases resolve to their canonical name.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	if input == "" {
		return Command{}, fmt.Errorf("empty command")
	}
	parts := strings.SplitN(input, " ", 2)
	word := strings.ToLower(parts[0])
	name, ok := commandAliases[word]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", word)
	}
	cmd := Command{Name: name}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	if (name == CmdChat || name == CmdSearch) && cmd.Args == "" {
		return Command{}, fmt.Errorf(":%s needs an argument", name)
	}
	return cmd, nil
}
