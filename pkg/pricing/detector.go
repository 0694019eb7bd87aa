package pricing

import (
	"context"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// DetectProvider attempts to detect the cloud provider from Kubernetes node labels
func DetectProvider(ctx context.Context, clientset kubernetes.Interface) (string, string, error) {
	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return "default", "unknown", err
	}

	if len(nodes.Items) == 0 {
		return "default", "unknown", nil
	}

	node := nodes.Items[0]
	labels := node.Labels

	if providerID := node.Spec.ProviderID; providerID != "" {
		switch {
		case strings.HasPrefix(providerID, "azure://"):
			return "azure", regionLabel(labels, "eastus"), nil
		case strings.HasPrefix(providerID, "aws://"):
			return "aws", regionLabel(labels, "us-east-1"), nil
		case strings.HasPrefix(providerID, "gce://"):
			return "gcp", regionLabel(labels, "us-central1"), nil
		}
	}

	if _, exists := labels["kubernetes.azure.com/cluster"]; exists {
		return "azure", regionLabel(labels, "eastus"), nil
	}
	if _, exists := labels["eks.amazonaws.com/nodegroup"]; exists {
		return "aws", regionLabel(labels, "us-east-1"), nil
	}
	if _, exists := labels["cloud.google.com/gke-nodepool"]; exists {
		return "gcp", regionLabel(labels, "us-central1"), nil
	}

	return "default", "unknown", nil
}

func regionLabel(labels map[string]string, fallback string) string {
	if region, exists := labels["topology.kubernetes.io/region"]; exists {
		return region
	}
	if region, exists := labels["failure-domain.beta.kubernetes.io/region"]; exists {
		return region
	}
	return fallback
}
