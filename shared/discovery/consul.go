// Package discovery registers services with a Consul agent so that other
// services can resolve them by name.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/consul/api"
)

// Registration describes one service instance.
type Registration struct {
	ID       string
	Name     string
	Address  string
	HTTPPort int
	GRPCPort int
	Tags     []string
}

type agent interface {
	ServiceRegister(service *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// ConsulRegistry registers and deregisters service instances with the local agent.
type ConsulRegistry struct {
	agent agent
}

// NewConsulRegistry creates a registry talking to the agent at address.
func NewConsulRegistry(address string) (*ConsulRegistry, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulRegistry{agent: client.Agent()}, nil
}

// Register announces the instance with a gRPC health check against GRPCPort.
func (r *ConsulRegistry) Register(reg Registration) error {
	return r.agent.ServiceRegister(buildServiceRegistration(reg))
}

// Deregister removes the instance from the agent.
func (r *ConsulRegistry) Deregister(id string) error {
	return r.agent.ServiceDeregister(id)
}

func buildServiceRegistration(reg Registration) *api.AgentServiceRegistration {
	return &api.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.HTTPPort,
		Tags:    reg.Tags,
		Meta: map[string]string{
			"grpc_port": strconv.Itoa(reg.GRPCPort),
		},
		Check: &api.AgentServiceCheck{
			GRPC:                           net.JoinHostPort(reg.Address, strconv.Itoa(reg.GRPCPort)) + "/" + reg.Name,
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}
