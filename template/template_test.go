package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func render(t *testing.T, env *Env, src string) string {
	t.Helper()
	out, err := env.Render(src)
	if err != nil {
		t.Fatalf("Render(%q): %v", src, err)
	}
	return out
}

func TestEnv_Render_Expressions(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		src  string
		want string
	}{
		{
			name: "plain substitution",
			vars: map[string]string{"X": "hello"},
			src:  "echo {{X}}",
			want: "echo hello",
		},
		{
			name: "arithmetic",
			src:  "{{ 1 + 2 * 3 }}",
			want: "7",
		},
		{
			name: "filter chain",
			vars: map[string]string{"NAME": "burt"},
			src:  "{{ NAME | upper }}",
			want: "BURT",
		},
		{
			name: "comparison and boolean test",
			src:  "{{ 3 > 2 and 1 is odd }}",
			want: "true",
		},
		{
			name: "in operator over a list literal",
			src:  `{{ "a" in ["a", "b"] }}`,
			want: "true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnv(tt.vars)
			if diff := cmp.Diff(tt.want, render(t, env, tt.src)); diff != "" {
				t.Fatalf("rendered output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnv_Render_ControlBlocks(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		src  string
		want string
	}{
		{
			name: "if/else",
			vars: map[string]string{"X": "hello"},
			src:  "{% if X == \"hello\" %}yes{% else %}no{% endif %}",
			want: "yes",
		},
		{
			name: "if/elif/else chain takes elif branch",
			vars: map[string]string{"X": "b"},
			src:  `{% if X == "a" %}A{% elif X == "b" %}B{% else %}C{% endif %}`,
			want: "B",
		},
		{
			name: "for loop over a list literal",
			src:  "{% for i in [1, 2, 3] %}{{ i }}{% endfor %}",
			want: "123",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnv(tt.vars)
			if diff := cmp.Diff(tt.want, render(t, env, tt.src)); diff != "" {
				t.Fatalf("rendered output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnv_SetDefault_ArgSemantics(t *testing.T) {
	// ARG name followed by further ARG name[=default] leaves the value
	// bound to the first non-default or, if none, the last default: SET
	// with default=true is a no-op once the name is already set.
	env := NewEnv(nil)
	env.SetDefault("X", String("first-default"))
	env.Set("X", String("explicit"))
	env.SetDefault("X", String("later-default"))

	if got := env.Get("X").String(); got != "explicit" {
		t.Fatalf("expected explicit value to survive further ARG defaults, got %q", got)
	}
}

func TestEnv_IsSet(t *testing.T) {
	env := NewEnv(nil)
	if env.IsSet("X") {
		t.Fatal("expected X to be unset initially")
	}
	env.Set("X", Undefined())
	if !env.IsSet("X") {
		t.Fatal("expected X to be set even when its value is Undefined")
	}
}
