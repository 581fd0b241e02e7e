package challenge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytmux/errs"
	"github.com/ytget/ytmux/internal/logger"
	"github.com/ytget/ytmux/types"
)

// Engine names a JavaScript interpreter used to evaluate transforms.
type Engine string

const (
	EngineGoja Engine = "goja"
	EngineOtto Engine = "otto"
)

// DefaultSolveTimeout bounds one evaluation.
const DefaultSolveTimeout = 5 * time.Second

const defaultParam = "a"

var (
	errNotString = errors.New("transform did not return a string")
	errUndefined = errors.New("transform returned undefined")
)

// ParseEngine maps a name to an Engine. Empty selects goja.
func ParseEngine(name string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(name))) {
	case "", EngineGoja:
		return EngineGoja, nil
	case EngineOtto:
		return EngineOtto, nil
	default:
		return "", fmt.Errorf("unknown engine %q (want goja or otto)", name)
	}
}

// evaluator runs body as a one-parameter function on input in a fresh,
// binding-free runtime, giving up when ctx is done.
type evaluator func(ctx context.Context, param, body, input string) (string, error)

// SolverConfig configures a Solver. Zero values use defaults.
type SolverConfig struct {
	Engine  Engine
	Timeout time.Duration
}

// Solver evaluates n transforms and signs stream URLs with the result.
type Solver struct {
	engine  Engine
	eval    evaluator
	timeout time.Duration
	log     *logger.ComponentLogger
}

// NewSolver creates a Solver. Unknown engines fall back to goja.
func NewSolver(cfg SolverConfig) *Solver {
	s := &Solver{
		engine:  EngineGoja,
		eval:    evalGoja,
		timeout: cfg.Timeout,
		log:     logger.WithComponent(logger.ComponentChallenge),
	}
	if cfg.Engine == EngineOtto {
		s.engine = EngineOtto
		s.eval = evalOtto
	}
	if s.timeout <= 0 {
		s.timeout = DefaultSolveTimeout
	}
	return s
}

// WithLogger replaces the component logger.
func (s *Solver) WithLogger(l *logger.Logger) *Solver {
	if l != nil {
		s.log = l.WithComponent(logger.ComponentChallenge)
	}
	return s
}

// Engine reports the interpreter in use.
func (s *Solver) Engine() Engine {
	return s.engine
}

// Solve applies the transform in ch to input. The input is handed to the
// runtime as a value and never becomes part of the evaluated source.
func (s *Solver) Solve(ctx context.Context, ch types.Challenge, input string) (string, error) {
	if strings.TrimSpace(ch.Source) == "" {
		return "", errs.Wrapf(errs.ErrChallengeSolveFailed, "empty transform body")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrChallengeSolveFailed, err)
	}
	param := ch.Param
	if param == "" {
		param = defaultParam
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.eval(ctx, param, ch.Source, input)
	if err != nil {
		s.log.Warn("transform evaluation failed", logger.Fields{"engine": string(s.engine), "error": err.Error()})
		return "", fmt.Errorf("%w: %w", errs.ErrChallengeSolveFailed, err)
	}
	s.log.Trace("transform evaluated", logger.Fields{"engine": string(s.engine), "elapsed": time.Since(start).String()})
	return out, nil
}

// SignURL replaces the value of the n query parameter of rawURL with its
// transformed value. Every other byte of the URL is left as is. A URL
// without n is returned unchanged.
func (s *Solver) SignURL(ctx context.Context, ch types.Challenge, rawURL string) (string, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return "", fmt.Errorf("%w: parse url: %w", errs.ErrChallengeSolveFailed, err)
	}
	q := strings.IndexByte(rawURL, '?')
	if q < 0 {
		return rawURL, nil
	}
	end := len(rawURL)
	if h := strings.IndexByte(rawURL[q:], '#'); h >= 0 {
		end = q + h
	}

	pieces := strings.Split(rawURL[q+1:end], "&")
	for i, piece := range pieces {
		key, value, _ := strings.Cut(piece, "=")
		if key != "n" {
			continue
		}
		n, err := url.QueryUnescape(value)
		if err != nil {
			return "", fmt.Errorf("%w: unescape n: %w", errs.ErrChallengeSolveFailed, err)
		}
		out, err := s.Solve(ctx, ch, n)
		if err != nil {
			return "", err
		}
		pieces[i] = key + "=" + url.QueryEscape(out)
		s.log.Debug("url signed", logger.Fields{"n_in": n, "n_out": out})
		return rawURL[:q+1] + strings.Join(pieces, "&") + rawURL[end:], nil
	}
	return rawURL, nil
}
