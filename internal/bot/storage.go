package bot

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateCommand is returned when a command's exact word path is
	// already registered.
	ErrDuplicateCommand = errors.New("command already exists")
	// ErrUnknownCommand is returned when removing a command that is not
	// registered.
	ErrUnknownCommand = errors.New("no such command")
)

// commandStorage stores multi-word commands and resolves input lines to
// the longest registered prefix. Keys are the lower-cased,
// whitespace-split words of the command name.
type commandStorage struct {
	root  *cmdNode
	names map[string]*Command
	order []string
}

type cmdNode struct {
	entry    *Command
	children map[string]*cmdNode
}

func newCommandStorage() *commandStorage {
	return &commandStorage{
		root:  &cmdNode{children: make(map[string]*cmdNode)},
		names: make(map[string]*Command),
	}
}

// commandKey normalizes a command name to its storage key.
func commandKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func (cs *commandStorage) set(name string, entry *Command) error {
	key := commandKey(name)
	if _, ok := cs.names[key]; ok {
		return ErrDuplicateCommand
	}
	node := cs.root
	for _, word := range strings.Fields(key) {
		child, ok := node.children[word]
		if !ok {
			child = &cmdNode{children: make(map[string]*cmdNode)}
			node.children[word] = child
		}
		node = child
	}
	node.entry = entry
	cs.names[key] = entry
	cs.order = append(cs.order, key)
	return nil
}

func (cs *commandStorage) remove(name string) error {
	key := commandKey(name)
	if _, ok := cs.names[key]; !ok {
		return ErrUnknownCommand
	}
	node := cs.root
	for _, word := range strings.Fields(key) {
		node = node.children[word]
	}
	node.entry = nil
	delete(cs.names, key)
	for i, n := range cs.order {
		if n == key {
			cs.order = append(cs.order[:i:i], cs.order[i+1:]...)
			break
		}
	}
	return nil
}

// lookup resolves the longest registered prefix of tokens, returning the
// entry and the tokens it did not consume. When nothing matches it returns
// nil and the tokens untouched so the caller can report the words as
// typed.
func (cs *commandStorage) lookup(tokens []string) (*Command, []string) {
	node := cs.root
	var found *Command
	consumed := 0
	for i, tok := range tokens {
		child, ok := node.children[strings.ToLower(tok)]
		if !ok {
			break
		}
		node = child
		if node.entry != nil {
			found = node.entry
			consumed = i + 1
		}
	}
	return found, tokens[consumed:]
}

func (cs *commandStorage) has(name string) bool {
	_, ok := cs.names[commandKey(name)]
	return ok
}

func (cs *commandStorage) get(name string) *Command {
	return cs.names[commandKey(name)]
}

// list returns all registered full names in registration order.
func (cs *commandStorage) list() []string {
	return append([]string(nil), cs.order...)
}

// size counts full command names, not trie nodes.
func (cs *commandStorage) size() int { return len(cs.names) }
