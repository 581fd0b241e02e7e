// Package challenge extracts and evaluates the n-parameter transform that the
// platform's player script applies to stream URLs.
//
// Extraction scrapes the embed page for the player script path, then runs
// ordered lists of named patterns over the script: one list finds the call
// site, one resolves an indexed function array, one captures the function
// body. Supporting a new player layout means appending a Pattern.
//
// Evaluation compiles the captured body through the interpreter's Function
// constructor in a fresh runtime with no host bindings and passes the input as
// a runtime value. Two interpreters are available:
//
//	s := challenge.NewSolver(challenge.SolverConfig{Engine: challenge.EngineGoja})
//	signed, err := s.SignURL(ctx, ch, format.URL)
//
// Every evaluation is bounded by a timeout and by the caller's context.
package challenge
