// Package kube runs commands inside a pod selected by label, the container
// counterpart of an SSH session.
package kube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/vbp1/magicwand/internal/log"
)

// ErrNoPod is returned when no running pod matches the selector.
var ErrNoPod = errors.New("no running pod matches selector")

// Config selects cluster, namespace and pod.
type Config struct {
	KubeConfig    string // path to kubeconfig; empty uses the default loading rules
	Context       string
	Namespace     string
	LabelSelector string
	Container     string
}

// Client executes shell scripts in one pod.
type Client struct {
	cfg       Config
	rest      *rest.Config
	clientset kubernetes.Interface
	pod       string
}

// Dial resolves the kubeconfig and picks the target pod.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cfg.KubeConfig != "" {
		rules.ExplicitPath = cfg.KubeConfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
	restCfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("kube: load config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("kube: client: %w", err)
	}
	pod, err := SelectPod(ctx, cs, cfg.Namespace, cfg.LabelSelector)
	if err != nil {
		return nil, err
	}
	log.Component("kube").Debug().Str("namespace", cfg.Namespace).Str("pod", pod).Msg("pod selected")
	return &Client{cfg: cfg, rest: restCfg, clientset: cs, pod: pod}, nil
}

// SelectPod returns the alphabetically first running pod matching selector.
func SelectPod(ctx context.Context, cs kubernetes.Interface, namespace, selector string) (string, error) {
	pods, err := cs.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return "", fmt.Errorf("kube: list pods: %w", err)
	}
	var names []string
	for _, p := range pods.Items {
		if p.Status.Phase == corev1.PodRunning && p.DeletionTimestamp == nil {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w %q in namespace %q", ErrNoPod, selector, namespace)
	}
	sort.Strings(names)
	return names[0], nil
}

// Run executes script with /bin/sh -c in the selected container.
func (c *Client) Run(ctx context.Context, script string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	req := c.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(c.cfg.Namespace).
		Name(c.pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: c.cfg.Container,
			Command:   []string{"/bin/sh", "-c", script},
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.rest, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("kube: exec: %w", err)
	}
	log.Component("kube").Debug().Str("pod", c.pod).Int("len", len(script)).Msg("kube exec")
	return exec.StreamWithContext(ctx, remotecommand.StreamOptions{Stdout: stdout, Stderr: stderr})
}

// Output runs script and returns its stdout.
func (c *Client) Output(ctx context.Context, script string) ([]byte, error) {
	var out, errOut boundedBuffer
	out.max, errOut.max = 1<<20, 64<<10
	if err := c.Run(ctx, script, &out, &errOut); err != nil {
		if errOut.Len() > 0 {
			return nil, fmt.Errorf("%w: %s", err, errOut.String())
		}
		return nil, err
	}
	return out.Bytes(), nil
}

// Buffered is true: a pod exec stream is staged to disk before restore.
func (c *Client) Buffered() bool { return true }

// Close is a no-op; each Run opens its own stream.
func (c *Client) Close() error { return nil }

func (c *Client) String() string {
	return fmt.Sprintf("kubernetes://%s/%s", c.cfg.Namespace, c.pod)
}
