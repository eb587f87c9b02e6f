package kube

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func pod(name, ns string, phase corev1.PodPhase, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: labels},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func TestSelectPod(t *testing.T) {
	app := map[string]string{"app": "neos"}
	cs := fake.NewSimpleClientset(
		pod("neos-b", "prod", corev1.PodRunning, app),
		pod("neos-a", "prod", corev1.PodPending, app),
		pod("neos-c", "prod", corev1.PodRunning, app),
		pod("other", "prod", corev1.PodRunning, map[string]string{"app": "redis"}),
		pod("neos-0", "staging", corev1.PodRunning, app),
	)

	name, err := SelectPod(context.Background(), cs, "prod", "app=neos")
	require.NoError(t, err)
	assert.Equal(t, "neos-b", name)
}

func TestSelectPodNoMatch(t *testing.T) {
	cs := fake.NewSimpleClientset(pod("neos-a", "prod", corev1.PodFailed, map[string]string{"app": "neos"}))
	_, err := SelectPod(context.Background(), cs, "prod", "app=neos")
	assert.True(t, errors.Is(err, ErrNoPod))
}

func TestBoundedBuffer(t *testing.T) {
	b := boundedBuffer{max: 3}
	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = b.Write([]byte("d"))
	assert.Error(t, err)
}
