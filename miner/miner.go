// Package miner implements the external miner-binary subprocess contract
// of spec.md §4.6: one process per WorkItem, a fixed CLI argument shape,
// a single JSON object on stdout, and prompt SIGTERM-on-abort.
package miner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// Params are the CLI arguments passed to the miner binary (spec.md
// §4.6).
type Params struct {
	Address          string
	ChallengeID      string
	Difficulty       string
	NoPreMine        string
	LatestSubmission string
	NoPreMineHour    string
}

func (p Params) args() []string {
	return []string{
		"--address", p.Address,
		"--challenge-id", p.ChallengeID,
		"--difficulty", p.Difficulty,
		"--no-pre-mine", p.NoPreMine,
		"--latest-submission", p.LatestSubmission,
		"--no-pre-mine-hour", p.NoPreMineHour,
	}
}

// Result is the single JSON object the miner binary writes to stdout.
type Result struct {
	Success  bool   `json:"success"`
	Nonce    string `json:"nonce,omitempty"`
	Preimage string `json:"preimage,omitempty"`
	Hash     string `json:"hash,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Runner launches the external miner binary for one WorkItem. Two
// backends share this interface: execRunner (default, a direct os/exec
// child) and the docker/docker container backend in docker.go, for
// operators who ship the miner as an OCI image.
type Runner interface {
	Run(ctx context.Context, p Params, graceWait time.Duration) (Result, error)
}

// execRunner runs the miner binary directly via os/exec, the literal
// reading of spec.md §4.6's contract.
type execRunner struct {
	binaryPath string
}

type outcome struct {
	res Result
	ok  bool
	err error
}

// NewExecRunner builds the default Runner backend.
func NewExecRunner(binaryPath string) Runner {
	return &execRunner{binaryPath: binaryPath}
}

// Run starts the subprocess, waits for it to print its result line, and
// honors ctx cancellation by sending SIGTERM then escalating to SIGKILL
// after graceWait (spec.md §4.6: "expected to honor SIGTERM promptly for
// abort-on-expiry"; §5: "allow up to 10s for graceful shutdown").
func (r *execRunner) Run(ctx context.Context, p Params, graceWait time.Duration) (Result, error) {
	return r.runCmd(ctx, r.binaryPath, p.args(), graceWait)
}

// runShell is a test-only entry point exercising runCmd through /bin/sh
// -c, since the real miner binary contract's fixed flag shape isn't
// convenient to fake with a shell one-liner.
func (r *execRunner) runShell(ctx context.Context, script string, graceWait time.Duration) (Result, error) {
	return r.runCmd(ctx, r.binaryPath, []string{"-c", script}, graceWait)
}

func (r *execRunner) runCmd(ctx context.Context, name string, args []string, graceWait time.Duration) (Result, error) {
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("miner: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("miner: start: %w", err)
	}

	done := make(chan outcome, 1)
	go func() {
		var found Result
		var ok bool
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			var res Result
			if err := json.Unmarshal(scanner.Bytes(), &res); err == nil {
				found, ok = res, true
				break
			}
		}
		// Drain any remaining stdout before Wait, which otherwise may
		// close the pipe out from under a still-reading scanner.
		for scanner.Scan() {
		}
		err := cmd.Wait()
		done <- outcome{res: found, ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		terminate(cmd, graceWait, done)
		return Result{}, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return Result{}, fmt.Errorf("miner: crashed: %w", o.err)
		}
		if !o.ok {
			return Result{}, fmt.Errorf("miner: process exited without a result line")
		}
		return o.res, nil
	}
}

// terminate sends SIGTERM, waits up to graceWait, then SIGKILLs.
func terminate(cmd *exec.Cmd, graceWait time.Duration, done <-chan outcome) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(graceWait):
		_ = cmd.Process.Kill()
	}
}
