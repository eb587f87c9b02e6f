package rsync

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/process"
)

// Config describes an rsync pull over ssh.
type Config struct {
	Host       string
	User       string
	Port       int    // ssh port, 0 means 22
	SSHOptions string // extra ssh options, passed through verbatim
	KeyPath    string
	Insecure   bool
	Excludes   []string
}

// RemoteShell is the value for rsync -e.
func (c Config) RemoteShell() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	parts := []string{"ssh", "-p", strconv.Itoa(port)}
	if c.KeyPath != "" {
		parts = append(parts, "-i", c.KeyPath)
	}
	if c.Insecure {
		parts = append(parts, "-o", "StrictHostKeyChecking=no")
	}
	if o := strings.TrimSpace(c.SSHOptions); o != "" {
		parts = append(parts, o)
	}
	return strings.Join(parts, " ")
}

// Command pulls the contents of remoteDir into localDir. Symlinks are
// resolved (-L) and directory symlinks on the receiving side kept (-k).
func (c Config) Command(remoteDir, localDir string) process.Command {
	args := []string{"-e", c.RemoteShell(), "-kLr", "--stats"}
	for _, e := range c.Excludes {
		args = append(args, "--exclude", e)
	}
	src := c.User + "@" + c.Host + ":" + strings.TrimRight(remoteDir, "/") + "/"
	args = append(args, src, filepath.Clean(localDir)+"/")
	return process.Command{Name: "rsync", Args: args}
}

// Pull runs Command through runner, echoing rsync output to out, and parses
// the --stats block.
func (c Config) Pull(ctx context.Context, runner process.Runner, remoteDir, localDir string, out io.Writer) (Stats, error) {
	var buf bytes.Buffer
	start := time.Now()
	err := runner.Run(ctx, c.Command(remoteDir, localDir), nil, io.MultiWriter(out, &buf), out)
	if err != nil {
		return Stats{}, err
	}
	st, err := ParseStats(bufio.NewScanner(&buf))
	if err != nil {
		return Stats{}, err
	}
	st.Elapsed = time.Since(start)
	log.Component("rsync").Info().Int64("files", st.RegTransferred).Int64("bytes", st.TotalTransferredSize).Msg("rsync done")
	return st, nil
}
