package level

import (
	"fmt"
	"strings"
)

// Select resolves selectors against the node table and returns the union in
// id order. Supported forms: "*", "@name", "#id", ".type".
func (l *Level) Select(selectors ...string) ([]Entity, error) {
	matched := map[string]bool{}
	for _, sel := range selectors {
		match, err := compileSelector(sel)
		if err != nil {
			return nil, err
		}
		for id, e := range l.nodes {
			if match(e) {
				matched[id] = true
			}
		}
	}
	var out []Entity
	for _, id := range l.IDs() {
		if matched[id] {
			out = append(out, l.nodes[id])
		}
	}
	return out, nil
}

func compileSelector(sel string) (func(Entity) bool, error) {
	if sel == "*" {
		return func(Entity) bool { return true }, nil
	}
	if len(sel) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSelector, sel)
	}
	arg := sel[1:]
	switch sel[0] {
	case '@':
		return func(e Entity) bool { return e.node().Name == arg }, nil
	case '#':
		return func(e Entity) bool { return e.node().ID == arg }, nil
	case '.':
		needle := strings.ToLower(arg)
		return func(e Entity) bool {
			for _, tag := range e.Kind().Tags() {
				if strings.Contains(strings.ToLower(tag), needle) {
					return true
				}
			}
			return false
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidSelector, sel)
}
