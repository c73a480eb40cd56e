package events

import (
	"errors"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/fyrsmithlabs/launchplan/internal/config"
)

// StartEmbedded runs an in-process NATS server on localhost. A port of -1
// picks a free one; use ClientURL on the result to connect.
func StartEmbedded(cfg config.NATSConfig) (*natsserver.Server, error) {
	port := cfg.Port
	if port == 0 {
		port = -1
	}
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, errors.New("embedded nats server not ready")
	}
	return srv, nil
}
