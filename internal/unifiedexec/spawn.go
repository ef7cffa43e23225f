package unifiedexec

import (
	"io"
	"os/exec"
	"time"

	"github.com/creack/pty"
)

// spawnProcess starts the child described by env, wiring its stdout/stderr
// (or PTY master) into a fresh outputBuffer via a read-pump goroutine, per
// spec.md §4.G "Spawn".
func spawnProcess(env Env, id, callID string) (*Process, error) {
	cmd := exec.Command(env.Command, env.Args...)
	cmd.Dir = env.Cwd
	cmd.Env = buildEnv(env.Env)
	if env.Arg0 != "" {
		cmd.Args[0] = env.Arg0
	}

	p := &Process{
		ID:       id,
		CallID:   callID,
		Command:  env.Command,
		Cwd:      env.Cwd,
		TTY:      env.TTY,
		LastUsed: time.Now(),
		output:   newOutputBuffer(),
		done:     make(chan struct{}),
		cmd:      cmd,
	}

	if env.TTY {
		master, err := pty.Start(cmd)
		if err != nil {
			return nil, &SpawnError{Command: env.Command, Err: err}
		}
		p.ptyFile = master
		p.stdin = master
		go p.pump(master)
	} else {
		cmd.Stdin = nil
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, &SpawnError{Command: env.Command, Err: err}
		}
		cmd.Stderr = cmd.Stdout // merge stderr into the same pipe: one output_buffer per spec
		if err := cmd.Start(); err != nil {
			return nil, &SpawnError{Command: env.Command, Err: err}
		}
		go p.pump(stdout)
	}

	go p.watchExit()
	return p, nil
}

// pump reads from r until EOF, writing each chunk into the process's output
// buffer; it never returns an error since a pipe read naturally ends when
// the child exits and closes its write end.
func (p *Process) pump(r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.output.write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// watchExit waits for the child to exit and records its exit code, closing
// the process's cancellation token (done channel).
func (p *Process) watchExit() {
	err := p.cmd.Wait()
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	p.markExited(code)
}
