package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/banshee-data/lapsync/internal/monitoring"
)

// stderrLines is how many trailing stderr lines are kept for error reports.
const stderrLines = 20

// Process is a running encoder. Frames are written to Stdin; Wait closes the
// input and collects the exit status.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	wg   sync.WaitGroup
	mu   sync.Mutex
	tail []string
}

// Start launches the plan's binary with the HUD stream on its stdin.
// Cancelling ctx kills the process.
func Start(ctx context.Context, p *Plan) (*Process, error) {
	logf := monitoring.Tagged("encoder")
	cmd := exec.CommandContext(ctx, p.Binary, p.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.Binary, err)
	}
	logf("started %s (pid %d, %d frames)", p.Binary, cmd.Process.Pid, p.Frames)

	proc := &Process{cmd: cmd, stdin: stdin}
	proc.wg.Go(func() { proc.readStderr(stderr, logf) })
	return proc, nil
}

func (p *Process) readStderr(r io.Reader, logf func(string, ...interface{})) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		logf("%s", line)
		p.mu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrLines {
			p.tail = p.tail[len(p.tail)-stderrLines:]
		}
		p.mu.Unlock()
	}
}

// Stdin is the raw frame input of the encoder.
func (p *Process) Stdin() io.Writer { return p.stdin }

// Wait closes stdin and waits for the encoder to exit. A failed exit is
// reported with the last lines of its stderr.
func (p *Process) Wait() error {
	_ = p.stdin.Close()
	p.wg.Wait()
	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	if tail := p.Stderr(); tail != "" {
		return fmt.Errorf("encoder failed: %w: %s", err, tail)
	}
	return fmt.Errorf("encoder failed: %w", err)
}

// Abort kills the encoder and reaps it.
func (p *Process) Abort() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.wg.Wait()
	_ = p.cmd.Wait()
}

// Stderr returns the retained tail of the encoder's stderr.
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.tail, "\n")
}
