package rule

import (
	"errors"
	"testing"
)

func TestMatch_LeafKinds(t *testing.T) {
	attrs := map[string]string{
		"jurisdiction":      "DE",
		"business_function": "payments",
		"endpoint":          "api.example.com/v1/transfer",
	}

	tests := []struct {
		name string
		node *Node
		want bool
	}{
		{
			name: "equals match",
			node: &Node{Kind: KindEquals, Attribute: "jurisdiction", Value: "DE"},
			want: true,
		},
		{
			name: "equals mismatch",
			node: &Node{Kind: KindEquals, Attribute: "jurisdiction", Value: "US"},
			want: false,
		},
		{
			name: "equals missing attribute",
			node: &Node{Kind: KindEquals, Attribute: "region", Value: "DE"},
			want: false,
		},
		{
			name: "in match",
			node: &Node{Kind: KindIn, Attribute: "jurisdiction", Values: []string{"DE", "FR"}},
			want: true,
		},
		{
			name: "in missing attribute",
			node: &Node{Kind: KindIn, Attribute: "region", Values: []string{"DE"}},
			want: false,
		},
		{
			name: "not_in outside set",
			node: &Node{Kind: KindNotIn, Attribute: "jurisdiction", Values: []string{"US", "CN"}},
			want: true,
		},
		{
			name: "not_in inside set",
			node: &Node{Kind: KindNotIn, Attribute: "jurisdiction", Values: []string{"DE"}},
			want: false,
		},
		{
			// Unknown jurisdiction must not pass an allow-set check.
			name: "not_in missing attribute matches",
			node: &Node{Kind: KindNotIn, Attribute: "region", Values: []string{"EU"}},
			want: true,
		},
		{
			name: "prefix match",
			node: &Node{Kind: KindPrefix, Attribute: "endpoint", Value: "api.example.com"},
			want: true,
		},
		{
			name: "prefix mismatch",
			node: &Node{Kind: KindPrefix, Attribute: "endpoint", Value: "internal."},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Match(attrs); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch_LogicalKinds(t *testing.T) {
	attrs := map[string]string{"jurisdiction": "US", "business_function": "marketing"}

	blocked := &Node{Kind: KindIn, Attribute: "jurisdiction", Values: []string{"US", "CN", "RU"}}
	marketing := &Node{Kind: KindEquals, Attribute: "business_function", Value: "marketing"}
	payments := &Node{Kind: KindEquals, Attribute: "business_function", Value: "payments"}

	tests := []struct {
		name string
		node *Node
		want bool
	}{
		{"all both true", &Node{Kind: KindAll, Children: []*Node{blocked, marketing}}, true},
		{"all one false", &Node{Kind: KindAll, Children: []*Node{blocked, payments}}, false},
		{"any one true", &Node{Kind: KindAny, Children: []*Node{payments, marketing}}, true},
		{"any none true", &Node{Kind: KindAny, Children: []*Node{payments}}, false},
		{"not inverts", &Node{Kind: KindNot, Children: []*Node{payments}}, true},
		{"nested", &Node{Kind: KindAll, Children: []*Node{
			blocked,
			{Kind: KindNot, Children: []*Node{payments}},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Match(attrs); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch_NilNodeMatchesEverything(t *testing.T) {
	var n *Node
	if !n.Match(map[string]string{"anything": "at all"}) {
		t.Error("nil rule should match all requests")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    *Node
		wantErr bool
	}{
		{
			name: "valid tree",
			node: &Node{Kind: KindAll, Children: []*Node{
				{Kind: KindNotIn, Attribute: "jurisdiction", Values: []string{"EU"}},
				{Kind: KindEquals, Attribute: "business_function", Value: "payments"},
			}},
		},
		{
			name:    "equals without attribute",
			node:    &Node{Kind: KindEquals, Value: "x"},
			wantErr: true,
		},
		{
			name:    "in without values",
			node:    &Node{Kind: KindIn, Attribute: "jurisdiction"},
			wantErr: true,
		},
		{
			name:    "all without children",
			node:    &Node{Kind: KindAll},
			wantErr: true,
		},
		{
			name:    "not with two children",
			node:    &Node{Kind: KindNot, Children: []*Node{{Kind: KindEquals, Attribute: "a", Value: "b"}, {Kind: KindEquals, Attribute: "c", Value: "d"}}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			node:    &Node{Kind: "regex", Attribute: "a", Value: "b"},
			wantErr: true,
		},
		{
			name: "invalid nested child reported",
			node: &Node{Kind: KindAny, Children: []*Node{
				{Kind: KindEquals, Attribute: "a", Value: "b"},
				{Kind: KindIn, Attribute: "c"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
kind: all
children:
  - kind: not_in
    attribute: jurisdiction
    values: [EU, UK, CH]
  - kind: prefix
    attribute: endpoint
    value: api.
`)
	node, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	if node.Kind != KindAll || len(node.Children) != 2 {
		t.Fatalf("unexpected tree: %+v", node)
	}

	if node.Match(map[string]string{"jurisdiction": "EU", "endpoint": "api.x"}) {
		t.Error("EU jurisdiction should not match not_in [EU, UK, CH]")
	}
	if !node.Match(map[string]string{"jurisdiction": "US", "endpoint": "api.x"}) {
		t.Error("US jurisdiction with api. endpoint should match")
	}
}

func TestParseYAML_InvalidTree(t *testing.T) {
	if _, err := ParseYAML([]byte("kind: in\nattribute: jurisdiction\n")); err == nil {
		t.Fatal("expected validation error for in node without values")
	}
}

func TestClone_Isolation(t *testing.T) {
	orig := &Node{Kind: KindIn, Attribute: "jurisdiction", Values: []string{"DE", "FR"}}
	cp := orig.Clone()
	cp.Values[0] = "US"
	if orig.Values[0] != "DE" {
		t.Error("Clone should deep-copy values")
	}
}

func TestString(t *testing.T) {
	n := &Node{Kind: KindAll, Children: []*Node{
		{Kind: KindNotIn, Attribute: "jurisdiction", Values: []string{"EU", "UK"}},
		{Kind: KindEquals, Attribute: "business_function", Value: "payments"},
	}}
	want := `(jurisdiction not_in [EU, UK] and business_function == "payments")`
	if got := n.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
