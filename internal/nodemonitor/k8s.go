package nodemonitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// K8sLister lists running cache Pods via the Kubernetes API. The
// namespace/label-selector pair scopes discovery to the deployment's
// cache workloads.
type K8sLister struct {
	clientset kubernetes.Interface
	namespace string
	selector  string
	timeout   time.Duration
}

// NewK8sLister builds a K8sLister bound to the given namespace, selecting
// pods with label "network=<networkName>". It resolves a kubeconfig the
// same way an in-cluster or kubectl-configured caller would: in-cluster
// config first, then KUBECONFIG, then ~/.kube/config.
func NewK8sLister(namespace, networkName string) (*K8sLister, error) {
	config, err := buildKubeConfig()
	if err != nil {
		return nil, fmt.Errorf("nodemonitor: failed to build kubernetes config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("nodemonitor: failed to create kubernetes clientset: %w", err)
	}
	return &K8sLister{
		clientset: clientset,
		namespace: namespace,
		selector:  "network=" + networkName,
		timeout:   5 * time.Second,
	}, nil
}

func buildKubeConfig() (*rest.Config, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}

	kubeconfigPath := os.Getenv("KUBECONFIG")
	if kubeconfigPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		kubeconfigPath = filepath.Join(home, ".kube", "config")
	}
	if _, err := os.Stat(kubeconfigPath); err != nil {
		return nil, fmt.Errorf("kubeconfig file not found: %s", kubeconfigPath)
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// List implements Lister by listing running Pods and reading their
// LATITUDE/LONGITUDE env vars off the first container.
func (k *K8sLister) List() ([]Node, error) {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	pods, err := k.clientset.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: k.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in namespace %s: %w", k.namespace, err)
	}

	nodes := make([]Node, 0, len(pods.Items))
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}
		node := Node{
			Name:    pod.Name,
			Address: pod.Status.PodIP,
		}
		if len(pod.Spec.Containers) > 0 {
			node.Lat, node.Lon = geoFromEnv(pod.Spec.Containers[0].Env)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func geoFromEnv(env []corev1.EnvVar) (lat, lon *float64) {
	for _, e := range env {
		switch e.Name {
		case "LATITUDE":
			if v, err := strconv.ParseFloat(e.Value, 64); err == nil {
				lat = &v
			}
		case "LONGITUDE":
			if v, err := strconv.ParseFloat(e.Value, 64); err == nil {
				lon = &v
			}
		}
	}
	return lat, lon
}
