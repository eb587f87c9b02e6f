// Package maintenance runs the local Flow housekeeping commands that follow a
// clone or a restore.
package maintenance

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/vbp1/magicwand/internal/process"
)

// Flow runs ./flow subcommands in the local installation.
type Flow struct {
	Runner  process.Runner
	Command string // e.g. "./flow" or "php ./flow"
	Context string // local FLOW_CONTEXT
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
}

func (f Flow) env() []string {
	return []string{"FLOW_CONTEXT=" + f.Context}
}

// Cmd builds the command for a flow subcommand.
func (f Flow) Cmd(subcommand string, args ...string) (process.Command, error) {
	fields := strings.Fields(f.Command)
	if len(fields) == 0 {
		return process.Command{}, errors.New("flow command is empty")
	}
	return process.Command{
		Name: fields[0],
		Args: append(append(fields[1:], subcommand), args...),
		Env:  f.env(),
		Dir:  f.Dir,
	}, nil
}

// Run executes a flow subcommand.
func (f Flow) Run(ctx context.Context, subcommand string, args ...string) error {
	c, err := f.Cmd(subcommand, args...)
	if err != nil {
		return err
	}
	return f.Runner.Run(ctx, c, nil, f.Stdout, f.Stderr)
}

// FlushCaches runs flow:cache:flush.
func (f Flow) FlushCaches(ctx context.Context) error { return f.Run(ctx, "flow:cache:flush") }

// Migrate runs doctrine:migrate.
func (f Flow) Migrate(ctx context.Context) error { return f.Run(ctx, "doctrine:migrate") }

// SetCharset converts the database to utf8mb4.
func (f Flow) SetCharset(ctx context.Context) error { return f.Run(ctx, "database:setcharset") }

// PublishResources runs resource:publish.
func (f Flow) PublishResources(ctx context.Context) error { return f.Run(ctx, "resource:publish") }

// HookCmd wraps an operator supplied shell command.
func (f Flow) HookCmd(hook string) process.Command {
	return process.Command{Name: "sh", Args: []string{"-c", hook}, Env: f.env(), Dir: f.Dir}
}

// Hook runs a post-clone shell command with FLOW_CONTEXT set.
func (f Flow) Hook(ctx context.Context, hook string) error {
	return f.Runner.Run(ctx, f.HookCmd(hook), nil, f.Stdout, f.Stderr)
}
