package discovery

import (
	"fmt"
	"strconv"

	"notification-service/internal/config"

	"github.com/hashicorp/consul/api"
	"github.com/sirupsen/logrus"
)

type ServiceRegistry struct {
	client *api.Client
	server config.ServerConfig
	grpc   config.GRPCConfig
	log    logrus.FieldLogger
}

func NewServiceRegistry(cfg *config.Config, log logrus.FieldLogger) (*ServiceRegistry, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = cfg.Consul.Address

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	return &ServiceRegistry{
		client: client,
		server: cfg.Server,
		grpc:   cfg.GRPC,
		log:    log,
	}, nil
}

// Registration builds the agent registration: an HTTP check on /health and a
// gRPC check on the health service.
func (sr *ServiceRegistry) Registration() (*api.AgentServiceRegistration, error) {
	port, err := strconv.Atoi(sr.server.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid service port %q: %w", sr.server.Port, err)
	}

	return &api.AgentServiceRegistration{
		ID:      sr.server.ServiceID,
		Name:    sr.server.ServiceName,
		Port:    port,
		Address: sr.server.ServiceAddress,
		Checks: api.AgentServiceChecks{
			{
				Name:     "http",
				HTTP:     fmt.Sprintf("http://%s:%s/health", sr.server.ServiceAddress, sr.server.Port),
				Interval: "10s",
				Timeout:  "5s",
			},
			{
				Name:     "grpc",
				GRPC:     fmt.Sprintf("%s:%s/%s", sr.server.ServiceAddress, sr.grpc.Port, sr.server.ServiceName),
				Interval: "10s",
				Timeout:  "5s",
			},
		},
		Tags: []string{"notification", "websocket"},
		Meta: map[string]string{"grpc_port": sr.grpc.Port},
	}, nil
}

func (sr *ServiceRegistry) Register() error {
	registration, err := sr.Registration()
	if err != nil {
		return err
	}
	if err := sr.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service with Consul: %w", err)
	}

	sr.log.WithField("service_id", registration.ID).Info("registered service with Consul")
	return nil
}

// Deregister removes the service from Consul
func (sr *ServiceRegistry) Deregister() error {
	return sr.client.Agent().ServiceDeregister(sr.server.ServiceID)
}
