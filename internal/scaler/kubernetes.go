package scaler

import (
	"context"
	"fmt"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/OldStager01/resilience-plane/internal/logger"
)

type KubernetesConfig struct {
	Namespace  string
	Deployment string
}

// KubernetesScaler drives the replica count of one Deployment.
type KubernetesScaler struct {
	clientset  kubernetes.Interface
	namespace  string
	deployment string
	mu         sync.Mutex
}

func NewKubernetesScaler(clientset kubernetes.Interface, cfg KubernetesConfig) *KubernetesScaler {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	return &KubernetesScaler{
		clientset:  clientset,
		namespace:  cfg.Namespace,
		deployment: cfg.Deployment,
	}
}

func (k *KubernetesScaler) GetCurrentReplicas(ctx context.Context) (int, error) {
	deployment, err := k.clientset.AppsV1().Deployments(k.namespace).Get(ctx, k.deployment, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to get deployment %s/%s: %w", k.namespace, k.deployment, err)
	}
	if deployment.Spec.Replicas == nil {
		return 0, nil
	}
	return int(*deployment.Spec.Replicas), nil
}

func (k *KubernetesScaler) SetReplicas(ctx context.Context, replicas int) error {
	if replicas < 0 {
		return ErrInvalidTarget
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	deployments := k.clientset.AppsV1().Deployments(k.namespace)
	deployment, err := deployments.Get(ctx, k.deployment, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get deployment %s/%s: %w", k.namespace, k.deployment, err)
	}

	current := int32(0)
	if deployment.Spec.Replicas != nil {
		current = *deployment.Spec.Replicas
	}
	desired := int32(replicas)
	if current == desired {
		return nil
	}

	deployment.Spec.Replicas = &desired
	updated, err := deployments.Update(ctx, deployment, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to update deployment %s/%s: %w", k.namespace, k.deployment, err)
	}
	if updated.Spec.Replicas == nil || *updated.Spec.Replicas != desired {
		return fmt.Errorf("%w: expected %d", ErrVerificationFailed, desired)
	}

	logger.WithComponent("scaler").WithFields(map[string]interface{}{
		"namespace":  k.namespace,
		"deployment": k.deployment,
	}).Infof("Deployment scaled %d -> %d", current, desired)
	return nil
}
