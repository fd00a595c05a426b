package main

import (
	"fmt"

	"github.com/rhuss/werkstatt/pkg/api"
	"github.com/rhuss/werkstatt/pkg/config"
	"github.com/rhuss/werkstatt/pkg/engine"
	"github.com/rhuss/werkstatt/pkg/logging"
	"github.com/rhuss/werkstatt/pkg/provider"
	"github.com/rhuss/werkstatt/pkg/provider/litellm"
	"github.com/rhuss/werkstatt/pkg/provider/openai"
	"github.com/rhuss/werkstatt/pkg/sandbox"
	"github.com/rhuss/werkstatt/pkg/sandbox/controlplane"
	"github.com/rhuss/werkstatt/pkg/sandbox/kubernetes"
	"github.com/rhuss/werkstatt/pkg/tools"
	"github.com/rhuss/werkstatt/pkg/tools/mcp"
)

// workspaceHeader selects the workspace on the hosted control plane and
// its tool gateways.
const workspaceHeader = "X-Blaxel-Workspace"

func newBackend(cfg *config.Config, logs *logging.Logging) (sandbox.Backend, error) {
	log := logs.For(logging.Sandbox)
	switch cfg.Sandbox.Backend {
	case "controlplane":
		return controlplane.New(controlplane.Options{
			BaseURL:     cfg.Sandbox.APIURL,
			APIKey:      cfg.Sandbox.APIKey,
			Workspace:   cfg.Sandbox.Workspace,
			RequestRate: cfg.Sandbox.RequestRate,
			Logger:      log,
		})
	case "kubernetes":
		b, err := kubernetes.NewFromKubeconfig(cfg.Kubernetes.Context, kubernetes.Options{
			Namespace:     cfg.Kubernetes.Namespace,
			Template:      cfg.Kubernetes.Template,
			GatewayPort:   cfg.Kubernetes.GatewayPort,
			PreviewDomain: cfg.Kubernetes.PreviewDomain,
			Logger:        log,
		})
		if err != nil {
			return nil, api.NewConfigError(fmt.Sprintf("kubernetes backend: %v", err))
		}
		return b, nil
	default:
		return nil, api.NewConfigError(fmt.Sprintf("unknown sandbox backend %q", cfg.Sandbox.Backend))
	}
}

func newProvider(cfg *config.Config, logs *logging.Logging) (provider.Provider, error) {
	log := logs.For(logging.Provider)
	var (
		prov provider.Provider
		err  error
	)
	switch cfg.Model.Provider {
	case "openai":
		prov, err = openai.New(openai.Config{
			BaseURL: cfg.Model.BaseURL,
			APIKey:  cfg.Model.APIKey,
			Timeout: cfg.Model.Timeout,
			Logger:  log,
		})
	case "litellm":
		prov, err = litellm.New(litellm.Config{
			BaseURL:      cfg.Model.BaseURL,
			APIKey:       cfg.Model.APIKey,
			Timeout:      cfg.Model.Timeout,
			ModelMapping: cfg.Model.ModelMapping,
			Logger:       log,
		})
	default:
		return nil, api.NewConfigError(fmt.Sprintf("unknown model provider %q", cfg.Model.Provider))
	}
	if err != nil {
		return nil, api.NewConfigError(err.Error())
	}
	return prov, nil
}

func newDialer(cfg *config.Config, logs *logging.Logging) tools.Dialer {
	var headers map[string]string
	if cfg.Sandbox.Workspace != "" {
		headers = map[string]string{workspaceHeader: cfg.Sandbox.Workspace}
	}
	return mcp.NewDialer(mcp.Options{
		ClientName:  "werkstatt",
		Headers:     headers,
		CallTimeout: cfg.Gateway.CallTimeout,
		MaxAttempts: cfg.Gateway.MaxAttempts,
		Logger:      logs.For(logging.Gateway),
	})
}

func engineConfig(cfg *config.Config, logs *logging.Logging) engine.Config {
	ports := make([]sandbox.Port, 0, len(cfg.Sandbox.Ports))
	for _, p := range cfg.Sandbox.Ports {
		ports = append(ports, sandbox.Port{Name: p.Name, Target: p.Target, Protocol: p.Protocol})
	}
	return engine.Config{
		Sandbox: sandbox.Descriptor{
			Name:     cfg.Sandbox.Name,
			Image:    cfg.Sandbox.Image,
			MemoryMB: cfg.Sandbox.MemoryMB,
			Ports:    ports,
		},
		Preview: sandbox.PreviewSpec{
			Name:            cfg.Preview.Name,
			Port:            cfg.Preview.Port,
			Public:          cfg.Preview.Public,
			ResponseHeaders: cfg.Preview.Headers,
		},
		GatewayPath:                cfg.Gateway.Path,
		GatewayToken:               cfg.Gateway.Token,
		Model:                      cfg.Model.Model,
		MaxTokens:                  cfg.Model.MaxTokens,
		MaxTurns:                   cfg.Agent.MaxTurns,
		MaxConsecutiveToolFailures: cfg.Agent.MaxConsecutiveToolFailures,
		MaxParallelTools:           cfg.Agent.MaxParallelTools,
		SystemPrompt:               cfg.Agent.SystemPrompt,
		Instructions:               cfg.Agent.Instructions,
		ProjectDir:                 cfg.Agent.ProjectDir,
		Logger:                     logs.For(logging.Engine),
	}
}
