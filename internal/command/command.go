// Package command maps a parsed framed value (or text-fallback tokens)
// into a typed command, and holds the COMMAND DOCS text. internal/server
// executes each command and formats its reply.
package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/caskdb/caskdb/internal/wire"
)

// Kind identifies which command a Command carries.
type Kind int

const (
	Ping Kind = iota
	Quit
	DBSize
	Get
	Set
	Keys
	Echo
	CommandDocs
)

// Command is a fully parsed request, ready for internal/server to execute
// against the storage engine.
type Command struct {
	Kind    Kind
	Key     string
	Value   string
	Pattern *string // nil means KEYS with no pattern (list everything)
	Msg     string
}

// ErrUnrecognized means the verb or arity didn't match any known command;
// per the wire contract this is a malformed-style failure that closes the
// connection, distinct from a command-level failure like a missing key.
var ErrUnrecognized = fmt.Errorf("command: unrecognized command")

// FromFrame recognizes a command from a decoded RESP array. Verb matching
// is case-sensitive here — framed verbs are uppercase literals.
func FromFrame(v wire.Value) (Command, error) {
	if v.Type != wire.TypeArray || len(v.Array) == 0 {
		return Command{}, ErrUnrecognized
	}
	args := make([]string, len(v.Array))
	for i, a := range v.Array {
		args[i] = a.Str
	}
	return fromArgs(args[0], args[1:])
}

// FromText recognizes a command from the whitespace-tokenized text
// fallback. The verb is matched case-insensitively.
func FromText(tokens []string) (Command, error) {
	if len(tokens) == 0 {
		return Command{}, ErrUnrecognized
	}
	return fromArgs(strings.ToUpper(tokens[0]), tokens[1:])
}

func fromArgs(verb string, args []string) (Command, error) {
	switch verb {
	case "PING":
		if len(args) != 0 {
			return Command{}, ErrUnrecognized
		}
		return Command{Kind: Ping}, nil
	case "QUIT":
		if len(args) != 0 {
			return Command{}, ErrUnrecognized
		}
		return Command{Kind: Quit}, nil
	case "DBSIZE":
		if len(args) != 0 {
			return Command{}, ErrUnrecognized
		}
		return Command{Kind: DBSize}, nil
	case "GET":
		if len(args) != 1 {
			return Command{}, ErrUnrecognized
		}
		return Command{Kind: Get, Key: args[0]}, nil
	case "SET":
		if len(args) != 2 {
			return Command{}, ErrUnrecognized
		}
		return Command{Kind: Set, Key: args[0], Value: args[1]}, nil
	case "KEYS":
		switch len(args) {
		case 0:
			return Command{Kind: Keys}, nil
		case 1:
			p := args[0]
			return Command{Kind: Keys, Pattern: &p}, nil
		default:
			return Command{}, ErrUnrecognized
		}
	case "ECHO":
		if len(args) != 1 {
			return Command{}, ErrUnrecognized
		}
		return Command{Kind: Echo, Msg: args[0]}, nil
	case "COMMAND":
		if len(args) != 1 || strings.ToUpper(args[0]) != "DOCS" {
			return Command{}, ErrUnrecognized
		}
		return Command{Kind: CommandDocs}, nil
	default:
		return Command{}, ErrUnrecognized
	}
}

// CompilePattern compiles a KEYS pattern as a regular expression. A key is
// included when the pattern matches any substring of it — not glob
// semantics, per the protocol's documented (if surprising) choice.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}

// Doc is the documentation for one recognized command (its name, a syntax
// line and a one-sentence description), returned by COMMAND DOCS.
type Doc struct {
	Name  string
	Lines []string
}

// Docs enumerates every recognized command in the order they're listed by
// COMMAND DOCS.
var Docs = []Doc{
	{Name: "PING", Lines: []string{"PING", "Returns PONG."}},
	{Name: "QUIT", Lines: []string{"QUIT", "Closes the connection after replying OK."}},
	{Name: "DBSIZE", Lines: []string{"DBSIZE", "Returns the number of live keys."}},
	{Name: "GET", Lines: []string{"GET key", "Returns the value of key, or a null bulk reply if absent."}},
	{Name: "SET", Lines: []string{"SET key value", "Stores value under key, replacing any existing value."}},
	{Name: "KEYS", Lines: []string{"KEYS [pattern]", "Lists live keys, optionally filtered by a regular expression."}},
	{Name: "ECHO", Lines: []string{"ECHO message", "Returns message unchanged."}},
	{Name: "COMMAND", Lines: []string{"COMMAND DOCS", "Returns a short description of every recognized command."}},
}
