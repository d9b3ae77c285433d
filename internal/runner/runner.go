// Package runner defines how code blocks are executed. The docker
// subpackage provides the sandboxed implementation.
package runner

import (
	"context"
	"unicode/utf8"
)

// MaxOutputBytes caps each of stdout and stderr in a Result.
const MaxOutputBytes = 64 * 1024

// TimeoutExitCode is reported when a run is killed for exceeding its time
// limit, matching coreutils timeout(1).
const TimeoutExitCode = 124

type Request struct {
	Code string `json:"code"`
}

type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// Runner executes one code block in isolation.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// CapOutput trims s to at most MaxOutputBytes without splitting a UTF-8
// sequence and reports whether anything was cut.
func CapOutput(s string) (string, bool) {
	if len(s) <= MaxOutputBytes {
		return s, false
	}
	cut := MaxOutputBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
