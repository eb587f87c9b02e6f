package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"github.com/vbp1/magicwand/internal/log"
)

// Command описывает внешний процесс как массив аргументов, без shell-интерполяции.
type Command struct {
	Name  string
	Args  []string
	Env   []string // extra KEY=VALUE pairs on top of the current environment
	Dir   string
	Stdin string // fixed input, e.g. SQL statements
}

// Shell renders the command as a single POSIX shell line with every token quoted.
// It is used both for display and for execution through a remote shell.
func (c Command) Shell() string {
	parts := make([]string, 0, len(c.Env)+len(c.Args)+1)
	for _, kv := range c.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		parts = append(parts, k+"="+shellescape.Quote(v))
	}
	parts = append(parts, shellescape.Quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, shellescape.Quote(a))
	}
	return strings.Join(parts, " ")
}

func (c Command) String() string { return c.Shell() }

// Cmd builds *exec.Cmd bound to ctx.
func (c Command) Cmd(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Dir = c.Dir
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	return cmd
}

// Result содержит данные о выполненной команде.
type Result struct {
	Cmd      string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Runner executes local commands. Exec is the real implementation; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, c Command, stdin io.Reader, stdout, stderr io.Writer) error
	Stream(ctx context.Context, produce func(w io.Writer) error, consumer Command, stdout, stderr io.Writer) error
}

// Exec runs commands on the local machine.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, c Command, stdin io.Reader, stdout, stderr io.Writer) error {
	return RunLogged(ctx, c, stdin, stdout, stderr).Err
}

// Stream implements Runner.
func (Exec) Stream(ctx context.Context, produce func(w io.Writer) error, consumer Command, stdout, stderr io.Writer) error {
	return Stream(ctx, produce, consumer, stdout, stderr)
}

// RunLogged выполняет внешний процесс, логируя начало/конец.
// Ненулевой код возврата превращается в ошибку с именем команды.
func RunLogged(ctx context.Context, c Command, stdin io.Reader, stdout, stderr io.Writer) Result {
	lg := log.Component("process")
	cmd := c.Cmd(ctx)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	lg.Debug().Str("cmd", c.Name).Int("args", len(c.Args)).Msg("exec start")
	start := time.Now()

	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	lg.Debug().Str("cmd", c.Name).Int("code", exitCode).Dur("dur", duration).Err(err).Msg("exec done")

	if err != nil {
		err = fmt.Errorf("%s: %w", c.Name, err)
	}
	return Result{Cmd: c.Name, ExitCode: exitCode, Duration: duration, Err: err}
}

// Stream starts consumer and feeds its stdin with whatever produce writes.
// The consumer's stdin is closed once produce returns. Both sides must succeed.
func Stream(ctx context.Context, produce func(w io.Writer) error, consumer Command, stdout, stderr io.Writer) error {
	lg := log.Component("process")
	cmd := consumer.Cmd(ctx)
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	in, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", consumer.Name, err)
	}
	lg.Debug().Str("cmd", consumer.Name).Msg("stream consumer started")

	perr := produce(in)
	cerr := in.Close()
	werr := cmd.Wait()

	switch {
	case werr != nil:
		if perr != nil {
			return fmt.Errorf("%s: %w (producer: %v)", consumer.Name, werr, perr)
		}
		return fmt.Errorf("%s: %w", consumer.Name, werr)
	case perr != nil:
		return fmt.Errorf("producer: %w", perr)
	case cerr != nil && !errors.Is(cerr, os.ErrClosed):
		return cerr
	}
	return nil
}

// Pipe runs producer | consumer.
func Pipe(ctx context.Context, producer, consumer Command, stdout, stderr io.Writer) error {
	return Stream(ctx, func(w io.Writer) error {
		return RunLogged(ctx, producer, nil, w, stderr).Err
	}, consumer, stdout, stderr)
}
