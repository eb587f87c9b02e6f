package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vbp1/magicwand/internal/config"
	"github.com/vbp1/magicwand/internal/kube"
	"github.com/vbp1/magicwand/internal/ssh"
)

var (
	_ Remote = (*ssh.Client)(nil)
	_ Remote = (*kube.Client)(nil)
)

func TestPresetMapping(t *testing.T) {
	p := config.Preset{Host: "prod", User: "deploy", Port: 2222, SSHKey: "/k", InsecureSSH: true}
	assert.Equal(t, ssh.Config{User: "deploy", Host: "prod", Port: 2222, KeyPath: "/k", Insecure: true}, SSHConfig(p))

	k := config.Preset{K8sNamespace: "shop", K8sPodLabelSelector: "app=neos", K8sContainerName: "php", K8sContextName: "prod"}
	assert.Equal(t, kube.Config{Context: "prod", Namespace: "shop", LabelSelector: "app=neos", Container: "php"}, KubeConfig(k))
}

func TestSSHConfigAppliesSSHOptions(t *testing.T) {
	p := config.Preset{Host: "prod", User: "deploy", SSHOptions: "-o ProxyJump=bastion -p 2200"}
	cfg := SSHConfig(p)
	assert.Equal(t, "bastion", cfg.ProxyJump)
	assert.Equal(t, 2200, cfg.Port)
	assert.Equal(t, "prod:2200", cfg.Addr())
}
