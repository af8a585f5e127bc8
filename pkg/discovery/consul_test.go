package discovery

import (
	"testing"

	"notification-service/internal/config"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistration(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			ServiceName:    "notification-service",
			ServiceID:      "notification-service-1",
			ServiceAddress: "notification-service",
		},
		GRPC:   config.GRPCConfig{Port: "9090"},
		Consul: config.ConsulConfig{Address: "127.0.0.1:8500"},
	}

	sr, err := NewServiceRegistry(cfg, logger)
	require.NoError(t, err)

	reg, err := sr.Registration()
	require.NoError(t, err)
	assert.Equal(t, 8080, reg.Port)
	require.Len(t, reg.Checks, 2)
	assert.Equal(t, "http://notification-service:8080/health", reg.Checks[0].HTTP)
	assert.Equal(t, "notification-service:9090/notification-service", reg.Checks[1].GRPC)

	cfg.Server.Port = "http"
	sr, err = NewServiceRegistry(cfg, logger)
	require.NoError(t, err)
	_, err = sr.Registration()
	assert.Error(t, err)
}
