// Package k8snetpol discovers dependency edges from Kubernetes
// NetworkPolicy egress rules and from service-mesh routing
// configurations read as unstructured objects.
package k8snetpol

import (
	"context"
	"fmt"
	"time"

	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/rsionnach/nthlayer/internal/discovery"
	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const (
	egressConfidence = 0.8
	meshConfidence   = 0.75
)

// virtualServiceGVR is the Istio VirtualService resource, read without a
// generated client since no Istio SDK is available.
var virtualServiceGVR = schema.GroupVersionResource{
	Group: "networking.istio.io", Version: "v1beta1", Resource: "virtualservices",
}

// Provider implements discovery.Provider over a cluster's NetworkPolicy
// and (optionally) service-mesh VirtualService objects.
type Provider struct {
	clientset *kubernetes.Clientset
	dynamic   dynamic.Interface
	namespace string
}

func New(clientset *kubernetes.Clientset, dyn dynamic.Interface, namespace string) *Provider {
	if namespace == "" {
		namespace = metav1.NamespaceAll
	}
	return &Provider{clientset: clientset, dynamic: dyn, namespace: namespace}
}

func (p *Provider) Name() string { return "k8snetpol" }

func (p *Provider) Discover(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	var edges []nthlayer.DiscoveredDependency

	netpolEdges, err := p.discoverFromNetworkPolicies(ctx, service)
	if err != nil {
		return nil, err
	}
	edges = append(edges, netpolEdges...)

	meshEdges, err := p.discoverFromServiceMesh(ctx, service)
	if err != nil {
		// Mesh read is best-effort: a cluster without Istio installed
		// must not fail the whole provider call.
		return edges, nil
	}
	edges = append(edges, meshEdges...)

	return edges, nil
}

func (p *Provider) discoverFromNetworkPolicies(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	policies, err := p.clientset.NetworkingV1().NetworkPolicies(p.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + service,
	})
	if err != nil {
		return nil, fmt.Errorf("k8snetpol: list network policies: %w", err)
	}

	var edges []nthlayer.DiscoveredDependency
	for _, policy := range policies.Items {
		for _, egress := range policy.Spec.Egress {
			for _, peer := range egress.To {
				if target := podSelectorToService(peer); target != "" {
					edges = append(edges, nthlayer.DiscoveredDependency{
						SourceService: service,
						TargetService: target,
						Provider:      p.Name(),
						DepType:       nthlayer.DepTypeService,
						Confidence:    egressConfidence,
						Metadata:      map[string]any{"source": "network_policy_egress"},
					})
				}
			}
		}
	}
	return edges, nil
}

func podSelectorToService(peer networkingv1.NetworkPolicyPeer) string {
	if peer.PodSelector == nil {
		return ""
	}
	return peer.PodSelector.MatchLabels["app"]
}

func (p *Provider) discoverFromServiceMesh(ctx context.Context, service string) ([]nthlayer.DiscoveredDependency, error) {
	if p.dynamic == nil {
		return nil, nil
	}

	list, err := p.dynamic.Resource(virtualServiceGVR).Namespace(p.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	var edges []nthlayer.DiscoveredDependency
	for _, item := range list.Items {
		hosts, _, _ := unstructured.NestedStringSlice(item.Object, "spec", "hosts")
		for _, host := range hosts {
			if host == service {
				continue
			}
			edges = append(edges, nthlayer.DiscoveredDependency{
				SourceService: service,
				TargetService: host,
				Provider:      p.Name(),
				DepType:       nthlayer.DepTypeService,
				Confidence:    meshConfidence,
				Metadata:      map[string]any{"source": "virtualservice"},
			})
		}
	}
	return edges, nil
}

func (p *Provider) ListServices(ctx context.Context) ([]string, error) {
	services, err := p.clientset.CoreV1().Services(p.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("k8snetpol: list services: %w", err)
	}
	names := make([]string, 0, len(services.Items))
	for _, svc := range services.Items {
		names = append(names, svc.Name)
	}
	return names, nil
}

func (p *Provider) HealthCheck(ctx context.Context) discovery.HealthStatus {
	start := time.Now()
	_, err := p.clientset.CoreV1().Services(p.namespace).List(ctx, metav1.ListOptions{Limit: 1})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return discovery.HealthStatus{Healthy: false, Message: err.Error(), LatencyMS: latency}
	}
	return discovery.HealthStatus{Healthy: true, LatencyMS: latency}
}

func (p *Provider) GetServiceAttributes(ctx context.Context, service string) (map[string]any, error) {
	svc, err := p.clientset.CoreV1().Services(p.namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return nil, nil
	}
	attrs := make(map[string]any, len(svc.Labels))
	for k, v := range svc.Labels {
		attrs[k] = v
	}
	return attrs, nil
}
