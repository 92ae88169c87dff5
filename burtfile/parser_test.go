package burtfile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		target string
		want   []string // expected cmd.String() of the target's commands
	}{
		{
			name:   "simple run",
			input:  "TARGET t:\n FROM busybox\n RUN echo hi\n",
			target: "t",
			want:   []string{`FROM busybox`, `RUN echo hi`},
		},
		{
			name:   "bracketed run preserves argv without shell splitting",
			input:  "TARGET t:\n FROM busybox\n RUN [\"echo\",\"a b\"]\n",
			target: "t",
			want:   []string{`FROM busybox`, `RUN ["echo", "a b"]`},
		},
		{
			name:   "arg default and run with template",
			input:  "TARGET t:\n ARG X=default\n RUN echo {{X}}\n",
			target: "t",
			want:   []string{`ARG X=default`, `RUN echo {{X}}`},
		},
		{
			name:   "copy local paths",
			input:  "TARGET t:\n FROM busybox\n COPY a b /dest\n",
			target: "t",
			want:   []string{`FROM busybox`, `COPY a b /dest`},
		},
		{
			name:   "workdir then run",
			input:  "TARGET t:\n FROM busybox\n WORKDIR /tmp\n RUN pwd\n",
			target: "t",
			want:   []string{`FROM busybox`, `WORKDIR /tmp`, `RUN pwd`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			ts, ok := root.Target(tt.target)
			if !ok {
				t.Fatalf("no target %q", tt.target)
			}
			var got []string
			for _, cmd := range ts.Commands {
				got = append(got, cmd.String())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("commands mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	input := "TARGET t:\n FROM busybox\n RUN echo hi\n"
	root, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	again, err := Parse(root.String())
	if err != nil {
		t.Fatalf("re-Parse of re-emitted script: %v", err)
	}
	if diff := cmp.Diff(root.String(), again.String()); diff != "" {
		t.Fatalf("round trip is not a fixed point (-first +second):\n%s", diff)
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("A:\n bad")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
	if perr.Col != 2 {
		t.Errorf("expected column to point at 'b' in \" bad\" (col 2), got %d", perr.Col)
	}
}

func TestParse_BoundaryCases(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:  "empty target body",
			input: "TARGET t:\n",
		},
		{
			name:  "unknown command keyword",
			input: "TARGET t:\n BOGUS foo\n",
		},
		{
			name:  "copy with one argument",
			input: "TARGET t:\n COPY x\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Fatalf("expected a parse error for %q", tt.input)
			}
		})
	}
}
