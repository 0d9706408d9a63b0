package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/meng-cz/vulsim-rpc/message"
)

// ConfigLib is the "configlib" service: the backend's named-configuration
// store. Entries have a value and an optional comment; values may reference
// other entries with ${name} placeholders, which listref resolves in both
// directions.
type ConfigLib struct {
	mu      sync.Mutex
	entries map[string]*configEntry
}

type configEntry struct {
	value   string
	comment string
}

// NewConfigLib returns an empty store.
func NewConfigLib() *ConfigLib {
	return &ConfigLib{entries: make(map[string]*configEntry)}
}

// Add creates a new entry. Args: name, value, optional comment.
func (c *ConfigLib) Add(args []message.Arg) message.Response {
	name, okName := message.Lookup(args, "name", 0)
	value, okValue := message.Lookup(args, "value", 1)
	if !okName || !okValue || name.Text() == "" {
		return message.Errorf(codeBadArgs, "add requires name and value")
	}
	comment, _ := message.Lookup(args, "comment", 2)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[name.Text()]; exists {
		return message.Errorf(codeExists, "config already exists: %s", name.Text())
	}
	c.entries[name.Text()] = &configEntry{value: value.Text(), comment: comment.Text()}
	return message.Response{"code": codeOK}
}

// Update changes an existing entry's value.
func (c *ConfigLib) Update(args []message.Arg) message.Response {
	name, okName := message.Lookup(args, "name", 0)
	value, okValue := message.Lookup(args, "value", 1)
	if !okName || !okValue || name.Text() == "" {
		return message.Errorf(codeBadArgs, "update requires name and value")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.entries[name.Text()]
	if !exists {
		return message.Errorf(codeNotFound, "no such config: %s", name.Text())
	}
	entry.value = value.Text()
	return message.Response{"code": codeOK}
}

// Comment replaces an entry's comment.
func (c *ConfigLib) Comment(args []message.Arg) message.Response {
	name, okName := message.Lookup(args, "name", 0)
	if !okName || name.Text() == "" {
		return message.Errorf(codeBadArgs, "comment requires name")
	}
	comment, _ := message.Lookup(args, "comment", 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.entries[name.Text()]
	if !exists {
		return message.Errorf(codeNotFound, "no such config: %s", name.Text())
	}
	entry.comment = comment.Text()
	return message.Response{"code": codeOK}
}

// Remove deletes an entry. Entries still referenced by another entry's
// value cannot be removed.
func (c *ConfigLib) Remove(args []message.Arg) message.Response {
	name, ok := message.Lookup(args, "name", 0)
	if !ok || name.Text() == "" {
		return message.Errorf(codeBadArgs, "remove requires name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[name.Text()]; !exists {
		return message.Errorf(codeNotFound, "no such config: %s", name.Text())
	}
	for other, entry := range c.entries {
		if other != name.Text() && references(entry.value, name.Text()) {
			return message.Errorf(codeExists, "config %s is referenced by %s", name.Text(), other)
		}
	}
	delete(c.entries, name.Text())
	return message.Response{"code": codeOK}
}

// List returns all entries in the columnar shape the IDE expects:
// parallel names/values/comments arrays under "list_results".
func (c *ConfigLib) List(_ []message.Arg) message.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]string, len(names))
	comments := make([]string, len(names))
	for i, name := range names {
		values[i] = c.entries[name].value
		comments[i] = c.entries[name].comment
	}
	return message.Response{
		"code": codeOK,
		"list_results": map[string]any{
			"names":    names,
			"values":   values,
			"comments": comments,
		},
	}
}

// Listref resolves references for one entry. Forward (default) lists the
// entries named by ${...} placeholders in its value; with reverse=true it
// lists the entries whose values reference it.
func (c *ConfigLib) Listref(args []message.Arg) message.Response {
	name, ok := message.Lookup(args, "name", 0)
	if !ok || name.Text() == "" {
		return message.Errorf(codeBadArgs, "listref requires name")
	}
	reverseArg, _ := message.Lookup(args, "reverse", 1)
	reverse := strings.EqualFold(reverseArg.Text(), "true")

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.entries[name.Text()]
	if !exists {
		return message.Errorf(codeNotFound, "no such config: %s", name.Text())
	}

	var names []string
	if reverse {
		for other, e := range c.entries {
			if other != name.Text() && references(e.value, name.Text()) {
				names = append(names, other)
			}
		}
	} else {
		for other := range c.entries {
			if other != name.Text() && references(entry.value, other) {
				names = append(names, other)
			}
		}
	}
	sort.Strings(names)

	childs := make([]bool, len(names))
	values := make([]string, len(names))
	realvalues := make([]string, len(names))
	for i, n := range names {
		e := c.entries[n]
		childs[i] = strings.Contains(e.value, "${")
		values[i] = e.value
		realvalues[i] = c.resolveLocked(e.value, 0)
	}
	return message.Response{
		"code": codeOK,
		"list_results": map[string]any{
			"names":      names,
			"childs":     childs,
			"values":     values,
			"realvalues": realvalues,
		},
	}
}

// references reports whether value contains a ${name} placeholder.
func references(value, name string) bool {
	return strings.Contains(value, "${"+name+"}")
}

// resolveLocked substitutes placeholders recursively, bounded to avoid
// reference cycles blowing the stack.
func (c *ConfigLib) resolveLocked(value string, depth int) string {
	if depth > 8 || !strings.Contains(value, "${") {
		return value
	}
	out := value
	for name, entry := range c.entries {
		placeholder := "${" + name + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, c.resolveLocked(entry.value, depth+1))
		}
	}
	return out
}
