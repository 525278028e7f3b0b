// Package kube deploys model servers onto a Kubernetes cluster as
// Deployment plus Service pairs.
package kube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/modelsmith/modelsmith/pkg/modelsmith/logging"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/serve"
	"github.com/modelsmith/modelsmith/pkg/modelsmith/types"
)

const (
	serverPort  = 8080
	gpuResource = "nvidia.com/gpu"

	labelApp   = "app.kubernetes.io/name"
	labelModel = "modelsmith.io/model"
)

var pollInterval = 5 * time.Second

// Deployer runs model servers as Kubernetes deployments. One deployer
// manages at most one deployment at a time.
type Deployer struct {
	client    kubernetes.Interface
	namespace string
	timeout   time.Duration
	log       *logging.Logger

	release string
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithStartupTimeout bounds how long Deploy waits for ready replicas.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(d *Deployer) { d.timeout = timeout }
}

// NewDeployer builds a deployer from a kubeconfig path. An empty path
// falls back to the default loading rules.
func NewDeployer(kubeconfig, namespace string, opts ...Option) (*Deployer, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes client: %w", err)
	}
	return NewDeployerWithClient(client, namespace, opts...), nil
}

// NewDeployerWithClient builds a deployer around an existing client.
func NewDeployerWithClient(client kubernetes.Interface, namespace string, opts ...Option) *Deployer {
	d := &Deployer{
		client:    client,
		namespace: namespace,
		timeout:   10 * time.Minute,
		log:       logging.Get("serve.kube"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode implements serve.Deployer.
func (d *Deployer) Mode() types.Mode {
	return types.ModeClusterEndpoint
}

// Deploy creates a deployment and service for cfg and waits for the
// replica to become ready. The returned predictor targets the
// service's in-cluster DNS name.
func (d *Deployer) Deploy(ctx context.Context, cfg *serve.ModelConfig) (serve.Predictor, error) {
	if d.release != "" {
		if err := d.Teardown(ctx); err != nil {
			return nil, fmt.Errorf("teardown previous release: %w", err)
		}
	}

	release := releaseName(cfg.Model)
	d.log.Info("creating model server deployment",
		"model", cfg.Model,
		"namespace", d.namespace,
		"release", release)

	if _, err := d.client.AppsV1().Deployments(d.namespace).
		Create(ctx, d.deployment(cfg, release), metav1.CreateOptions{}); err != nil {
		return nil, serve.NewDeployError(serve.FailureLoad,
			fmt.Errorf("create deployment: %w", err))
	}
	d.release = release

	if _, err := d.client.CoreV1().Services(d.namespace).
		Create(ctx, d.service(cfg, release), metav1.CreateOptions{}); err != nil {
		return nil, serve.NewDeployError(serve.FailureLoad,
			fmt.Errorf("create service: %w", err))
	}

	if err := d.waitReady(ctx, release); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("http://%s.%s.svc.cluster.local:%d", release, d.namespace, serverPort)
	d.log.Info("model server ready", "release", release, "endpoint", endpoint)
	return &servicePredictor{endpoint: endpoint}, nil
}

// Teardown deletes the current deployment and service.
func (d *Deployer) Teardown(ctx context.Context) error {
	if d.release == "" {
		return nil
	}
	release := d.release
	d.release = ""
	d.log.Debug("deleting release", "release", release)

	if err := d.client.CoreV1().Services(d.namespace).
		Delete(ctx, release, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete service %s: %w", release, err)
	}
	if err := d.client.AppsV1().Deployments(d.namespace).
		Delete(ctx, release, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete deployment %s: %w", release, err)
	}
	return nil
}

// waitReady polls the deployment until a replica is ready, a pod was
// OOM-killed, or the timeout elapses.
func (d *Deployer) waitReady(ctx context.Context, release string) error {
	deadline := time.Now().Add(d.timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return serve.NewDeployError(serve.FailureLoad, ctx.Err())
		case <-ticker.C:
		}

		dep, err := d.client.AppsV1().Deployments(d.namespace).
			Get(ctx, release, metav1.GetOptions{})
		if err != nil {
			return serve.NewDeployError(serve.FailureLoad,
				fmt.Errorf("get deployment: %w", err))
		}
		if dep.Status.ReadyReplicas > 0 {
			return nil
		}

		if kind, terminated := d.podFailure(ctx, release); terminated {
			return serve.NewDeployError(kind,
				fmt.Errorf("model server pod terminated"))
		}

		if time.Now().After(deadline) {
			return serve.NewDeployError(serve.FailureDeepPing,
				fmt.Errorf("no ready replica after %s", d.timeout))
		}
	}
}

// podFailure inspects the release's pods for terminated containers and
// returns the matching failure kind.
func (d *Deployer) podFailure(ctx context.Context, release string) (serve.FailureKind, bool) {
	pods, err := d.client.CoreV1().Pods(d.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", labelApp, release),
	})
	if err != nil {
		return serve.FailureUnknown, false
	}
	for _, pod := range pods.Items {
		for _, cs := range pod.Status.ContainerStatuses {
			term := cs.State.Terminated
			if term == nil {
				term = cs.LastTerminationState.Terminated
			}
			if term == nil {
				continue
			}
			if term.Reason == "OOMKilled" {
				return serve.FailureOutOfMemory, true
			}
			if term.ExitCode != 0 {
				return serve.FailureLoad, true
			}
		}
	}
	return serve.FailureUnknown, false
}

func (d *Deployer) deployment(cfg *serve.ModelConfig, release string) *appsv1.Deployment {
	labels := map[string]string{
		labelApp:   release,
		labelModel: cfg.Model,
	}

	env := make([]corev1.EnvVar, 0, len(cfg.Env))
	for _, k := range cfg.Env.SortedKeys() {
		env = append(env, corev1.EnvVar{Name: k, Value: cfg.Env[k]})
	}

	limits := corev1.ResourceList{}
	if cfg.GPUs > 0 {
		limits[corev1.ResourceName(gpuResource)] = *resource.NewQuantity(int64(cfg.GPUs), resource.DecimalSI)
	}

	replicas := int32(1)
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      release,
			Namespace: d.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{labelApp: release}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  "model-server",
						Image: cfg.ImageURI,
						Env:   env,
						Ports: []corev1.ContainerPort{{ContainerPort: serverPort}},
						Resources: corev1.ResourceRequirements{
							Limits: limits,
						},
						ReadinessProbe: &corev1.Probe{
							ProbeHandler: corev1.ProbeHandler{
								HTTPGet: &corev1.HTTPGetAction{
									Path: "/ping",
									Port: intstr.FromInt32(serverPort),
								},
							},
							InitialDelaySeconds: 30,
							PeriodSeconds:       10,
						},
					}},
				},
			},
		},
	}
}

func (d *Deployer) service(cfg *serve.ModelConfig, release string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      release,
			Namespace: d.namespace,
			Labels: map[string]string{
				labelApp:   release,
				labelModel: cfg.Model,
			},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{labelApp: release},
			Ports: []corev1.ServicePort{{
				Port:       serverPort,
				TargetPort: intstr.FromInt32(serverPort),
			}},
		},
	}
}

// releaseName derives a unique, DNS-safe release name from a model ID.
func releaseName(model string) string {
	base := strings.ToLower(model)
	base = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return '-'
	}, base)
	if len(base) > 40 {
		base = base[:40]
	}
	return fmt.Sprintf("ms-%s-%s", strings.Trim(base, "-"), uuid.NewString()[:8])
}
