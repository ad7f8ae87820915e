package scaler

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/OldStager01/resilience-plane/internal/logger"
)

// NewClientset uses the in-cluster config when available, otherwise the
// given kubeconfig, $KUBECONFIG or ~/.kube/config.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	config, err := restConfig(kubeconfig)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	log := logger.WithComponent("scaler")

	if kubeconfig == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			log.Info("Using in-cluster Kubernetes configuration")
			return config, nil
		}
		kubeconfig = kubeconfigPath()
	}
	if kubeconfig == "" {
		return nil, fmt.Errorf("no kubeconfig found and not running in-cluster")
	}

	log.WithField("path", kubeconfig).Info("Using kubeconfig")
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	return config, nil
}

func kubeconfigPath() string {
	if path := os.Getenv("KUBECONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".kube", "config")
}
