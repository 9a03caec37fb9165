package rule

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant of a rule node.
type Kind string

const (
	// KindEquals matches when the attribute exactly equals Value.
	KindEquals Kind = "equals"

	// KindIn matches when the attribute is one of Values.
	KindIn Kind = "in"

	// KindNotIn matches when the attribute is absent or not one of Values.
	// Absence counts as a match: an unknown jurisdiction must not slip
	// through an allow-set check.
	KindNotIn Kind = "not_in"

	// KindPrefix matches when the attribute starts with Value.
	KindPrefix Kind = "prefix"

	// KindAll matches when every child matches (AND).
	KindAll Kind = "all"

	// KindAny matches when at least one child matches (OR).
	KindAny Kind = "any"

	// KindNot matches when its single child does not match.
	KindNot Kind = "not"
)

// Node is one node of a rule expression tree.
// Leaf kinds (equals, in, not_in, prefix) use Attribute plus Value or Values;
// logical kinds (all, any, not) use Children.
type Node struct {
	Kind      Kind     `yaml:"kind" json:"kind"`
	Attribute string   `yaml:"attribute,omitempty" json:"attribute,omitempty"`
	Value     string   `yaml:"value,omitempty" json:"value,omitempty"`
	Values    []string `yaml:"values,omitempty" json:"values,omitempty"`
	Children  []*Node  `yaml:"children,omitempty" json:"children,omitempty"`
}

// IsLeaf returns true for attribute-comparison nodes.
func (n *Node) IsLeaf() bool {
	switch n.Kind {
	case KindEquals, KindIn, KindNotIn, KindPrefix:
		return true
	}
	return false
}

// Match evaluates the tree against a request attribute set.
// A nil node matches everything; unknown attributes fail leaf comparisons
// except not_in, which treats absence as a match. Match is pure CPU and
// never returns an error: Validate is expected to have rejected malformed
// trees before a rule is ever evaluated.
func (n *Node) Match(attrs map[string]string) bool {
	if n == nil {
		return true
	}

	switch n.Kind {
	case KindEquals:
		v, ok := attrs[n.Attribute]
		return ok && v == n.Value

	case KindPrefix:
		v, ok := attrs[n.Attribute]
		return ok && strings.HasPrefix(v, n.Value)

	case KindIn:
		v, ok := attrs[n.Attribute]
		if !ok {
			return false
		}
		for _, candidate := range n.Values {
			if v == candidate {
				return true
			}
		}
		return false

	case KindNotIn:
		v, ok := attrs[n.Attribute]
		if !ok {
			return true
		}
		for _, candidate := range n.Values {
			if v == candidate {
				return false
			}
		}
		return true

	case KindAll:
		for _, child := range n.Children {
			if !child.Match(attrs) {
				return false
			}
		}
		return true

	case KindAny:
		for _, child := range n.Children {
			if child.Match(attrs) {
				return true
			}
		}
		return false

	case KindNot:
		return len(n.Children) == 1 && !n.Children[0].Match(attrs)

	default:
		return false
	}
}

// Validate checks the structural integrity of the tree.
func (n *Node) Validate() error {
	if n == nil {
		return nil
	}
	return n.validate("rule")
}

func (n *Node) validate(path string) error {
	switch n.Kind {
	case KindEquals, KindPrefix:
		if n.Attribute == "" {
			return &ValidationError{Path: path, Message: fmt.Sprintf("%s node requires an attribute", n.Kind)}
		}
		if len(n.Children) > 0 {
			return &ValidationError{Path: path, Message: fmt.Sprintf("%s node cannot have children", n.Kind)}
		}

	case KindIn, KindNotIn:
		if n.Attribute == "" {
			return &ValidationError{Path: path, Message: fmt.Sprintf("%s node requires an attribute", n.Kind)}
		}
		if len(n.Values) == 0 {
			return &ValidationError{Path: path, Message: fmt.Sprintf("%s node requires a non-empty values list", n.Kind)}
		}
		if len(n.Children) > 0 {
			return &ValidationError{Path: path, Message: fmt.Sprintf("%s node cannot have children", n.Kind)}
		}

	case KindAll, KindAny:
		if len(n.Children) == 0 {
			return &ValidationError{Path: path, Message: fmt.Sprintf("%s node requires at least one child", n.Kind)}
		}

	case KindNot:
		if len(n.Children) != 1 {
			return &ValidationError{Path: path, Message: "not node requires exactly one child"}
		}

	default:
		return &ValidationError{Path: path, Message: fmt.Sprintf("unknown rule kind %q", n.Kind)}
	}

	for i, child := range n.Children {
		if child == nil {
			return &ValidationError{Path: fmt.Sprintf("%s.children[%d]", path, i), Message: "child node is nil"}
		}
		if err := child.validate(fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the tree. Stored policies hand out clones so
// a caller can never mutate a snapshot shared with concurrent evaluators.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Kind:      n.Kind,
		Attribute: n.Attribute,
		Value:     n.Value,
	}
	if n.Values != nil {
		out.Values = append([]string(nil), n.Values...)
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, child.Clone())
	}
	return out
}

// String renders a compact, human-readable form of the tree for logs and
// transition reasons.
func (n *Node) String() string {
	if n == nil {
		return "true"
	}
	switch n.Kind {
	case KindEquals:
		return fmt.Sprintf("%s == %q", n.Attribute, n.Value)
	case KindPrefix:
		return fmt.Sprintf("%s starts_with %q", n.Attribute, n.Value)
	case KindIn:
		return fmt.Sprintf("%s in [%s]", n.Attribute, strings.Join(n.Values, ", "))
	case KindNotIn:
		return fmt.Sprintf("%s not_in [%s]", n.Attribute, strings.Join(n.Values, ", "))
	case KindAll, KindAny:
		parts := make([]string, len(n.Children))
		for i, child := range n.Children {
			parts[i] = child.String()
		}
		op := " and "
		if n.Kind == KindAny {
			op = " or "
		}
		return "(" + strings.Join(parts, op) + ")"
	case KindNot:
		if len(n.Children) == 1 {
			return "not " + n.Children[0].String()
		}
		return "not <invalid>"
	default:
		return fmt.Sprintf("<unknown kind %q>", n.Kind)
	}
}

// ParseYAML parses and validates a rule definition from YAML.
func ParseYAML(data []byte) (*Node, error) {
	var node Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, &ValidationError{Path: "rule", Message: "invalid YAML", Cause: err}
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	return &node, nil
}

// ValidationError reports a structurally invalid rule tree.
type ValidationError struct {
	Path    string // Dotted path to the offending node
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rule validation failed at %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("rule validation failed at %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}
