package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/types"
)

const reverseBody = `a=a.split("");a.reverse();return a.join("")`

var engines = []Engine{EngineGoja, EngineOtto}

func TestSolve_Golden(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "ABC", want: "CBA"},
		{input: "XYZ", want: "ZYX"},
		{input: "", want: ""},
		{input: `');throw 1;//`, want: `//;1 worht;)'`},
		{input: "a\"b\\c\n", want: "\nc\\b\"a"},
	}

	for _, engine := range engines {
		s := NewSolver(SolverConfig{Engine: engine})
		ch := types.Challenge{Param: "a", Source: reverseBody}
		for _, tt := range tests {
			got, err := s.Solve(context.Background(), ch, tt.input)
			if err != nil {
				t.Fatalf("%s: Solve(%q): %v", engine, tt.input, err)
			}
			if got != tt.want {
				t.Errorf("%s: Solve(%q) = %q, want %q", engine, tt.input, got, tt.want)
			}
		}
	}
}

func TestSolve_NoHostBindings(t *testing.T) {
	body := `return typeof console + "," + typeof require + "," + typeof process`
	for _, engine := range engines {
		got, err := NewSolver(SolverConfig{Engine: engine}).Solve(context.Background(), types.Challenge{Param: "a", Source: body}, "x")
		if err != nil {
			t.Fatalf("%s: %v", engine, err)
		}
		if got != "undefined,undefined,undefined" {
			t.Errorf("%s: bindings visible: %q", engine, got)
		}
	}
}

func TestSolve_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "throws", body: `throw new Error("boom")`},
		{name: "syntax error", body: `return a.split(""`},
		{name: "number result", body: `return 42`},
		{name: "undefined result", body: `var b = a;`},
		{name: "null result", body: `return null`},
		{name: "blank body", body: "   "},
	}

	for _, engine := range engines {
		for _, tt := range tests {
			t.Run(string(engine)+"/"+tt.name, func(t *testing.T) {
				_, err := NewSolver(SolverConfig{Engine: engine}).Solve(context.Background(), types.Challenge{Param: "a", Source: tt.body}, "ABC")
				if !errors.Is(err, errs.ErrChallengeSolveFailed) {
					t.Fatalf("expected ErrChallengeSolveFailed, got %v", err)
				}
			})
		}
	}
}

func TestSolve_Timeout(t *testing.T) {
	for _, engine := range engines {
		t.Run(string(engine), func(t *testing.T) {
			s := NewSolver(SolverConfig{Engine: engine, Timeout: 100 * time.Millisecond})
			start := time.Now()
			_, err := s.Solve(context.Background(), types.Challenge{Param: "a", Source: `while(true){}`}, "ABC")
			if !errors.Is(err, errs.ErrChallengeSolveFailed) {
				t.Fatalf("expected ErrChallengeSolveFailed, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 5*time.Second {
				t.Errorf("evaluation was not interrupted in time: %v", elapsed)
			}
		})
	}
}

func TestSolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSolver(SolverConfig{}).Solve(ctx, types.Challenge{Param: "a", Source: reverseBody}, "ABC")
	if !errors.Is(err, errs.ErrChallengeSolveFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected solve failure wrapping context.Canceled, got %v", err)
	}
}

func TestSolve_DefaultParam(t *testing.T) {
	got, err := NewSolver(SolverConfig{}).Solve(context.Background(), types.Challenge{Source: reverseBody}, "AB")
	if err != nil || got != "BA" {
		t.Fatalf("Solve = %q, %v", got, err)
	}
}

func TestSignURL(t *testing.T) {
	ch := types.Challenge{Param: "a", Source: reverseBody}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "preserves order and escaping",
			in:   "https://r1.example/videoplayback?expire=1&n=ABC&sparams=a%2Cb&lsig=x#t=1",
			want: "https://r1.example/videoplayback?expire=1&n=CBA&sparams=a%2Cb&lsig=x#t=1",
		},
		{
			name: "n first",
			in:   "https://r1.example/videoplayback?n=XYZ&z=9&a=1",
			want: "https://r1.example/videoplayback?n=ZYX&z=9&a=1",
		},
		{
			name: "escapes transformed value",
			in:   "https://r1.example/v?n=%2Bab",
			want: "https://r1.example/v?n=ba%2B",
		},
		{
			name: "no n",
			in:   "https://r1.example/v?nn=ABC&m=1",
			want: "https://r1.example/v?nn=ABC&m=1",
		},
		{
			name: "no query",
			in:   "https://r1.example/v",
			want: "https://r1.example/v",
		},
	}

	for _, engine := range engines {
		s := NewSolver(SolverConfig{Engine: engine})
		for _, tt := range tests {
			t.Run(string(engine)+"/"+tt.name, func(t *testing.T) {
				got, err := s.SignURL(context.Background(), ch, tt.in)
				if err != nil {
					t.Fatalf("SignURL: %v", err)
				}
				if got != tt.want {
					t.Errorf("SignURL = %q, want %q", got, tt.want)
				}
			})
		}
	}
}

func TestSignURL_Failure(t *testing.T) {
	ch := types.Challenge{Param: "a", Source: `throw 1`}
	_, err := NewSolver(SolverConfig{}).SignURL(context.Background(), ch, "https://r1.example/v?n=ABC")
	if !errors.Is(err, errs.ErrChallengeSolveFailed) {
		t.Fatalf("expected ErrChallengeSolveFailed, got %v", err)
	}
}

func TestParseEngine(t *testing.T) {
	tests := []struct {
		in      string
		want    Engine
		wantErr bool
	}{
		{in: "", want: EngineGoja},
		{in: "GOJA", want: EngineGoja},
		{in: " otto ", want: EngineOtto},
		{in: "v8", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseEngine(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseEngine(%q) = %q, %v", tt.in, got, err)
		}
	}
	if NewSolver(SolverConfig{Engine: "unknown"}).Engine() != EngineGoja {
		t.Error("unknown engine should fall back to goja")
	}
}
