// Package transport hides whether a preset is reached over SSH or through a
// Kubernetes pod exec.
package transport

import (
	"context"
	"io"

	"github.com/vbp1/magicwand/internal/config"
	"github.com/vbp1/magicwand/internal/kube"
	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/ssh"
)

// Remote executes shell scripts on the remote environment.
type Remote interface {
	Run(ctx context.Context, script string, stdout, stderr io.Writer) error
	Output(ctx context.Context, script string) ([]byte, error)
	// Buffered reports that stdout should be staged locally before it is
	// fed to another process.
	Buffered() bool
	String() string
	Close() error
}

// Dialer opens a Remote for a preset.
type Dialer func(ctx context.Context, p config.Preset) (Remote, error)

// Dial connects according to the preset's target.
func Dial(ctx context.Context, p config.Preset) (Remote, error) {
	if p.IsKubernetes() {
		c, err := kube.Dial(ctx, KubeConfig(p))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := ssh.Dial(ctx, SSHConfig(p))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SSHConfig maps a preset onto ssh.Config. sshOptions understood by the Go
// client are applied so the database transfer takes the same route as rsync;
// the rest only reach rsync and are logged.
func SSHConfig(p config.Preset) ssh.Config {
	cfg, ignored := ssh.Config{
		User:     p.User,
		Host:     p.Host,
		Port:     p.Port,
		KeyPath:  p.SSHKey,
		Insecure: p.InsecureSSH,
	}.WithOptions(p.SSHOptions)
	if len(ignored) > 0 {
		log.Component("transport").Warn().Str("preset", p.Name).Strs("ignored", ignored).Msg("ssh options not supported for the database connection")
	}
	return cfg
}

// KubeConfig maps a preset onto kube.Config.
func KubeConfig(p config.Preset) kube.Config {
	return kube.Config{
		KubeConfig:    p.K8sConfigFile,
		Context:       p.K8sContextName,
		Namespace:     p.K8sNamespace,
		LabelSelector: p.K8sPodLabelSelector,
		Container:     p.K8sContainerName,
	}
}
