package server

import (
	"fmt"
	"log/slog"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
)

const embeddedLogPrefix = "server:embedded"

// startEmbeddedComms runs an in-process NATS server on port and returns it
// with its client URL. Port -1 picks a random port.
func startEmbeddedComms(port int) (*commsserver.Server, string, error) {
	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%s - failed to create embedded COMMS: %w", embeddedLogPrefix, err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, "", fmt.Errorf("%s - embedded COMMS not ready on port %d", embeddedLogPrefix, port)
	}

	url := ns.ClientURL()
	slog.Info(fmt.Sprintf("%s - Embedded COMMS listening at %s", embeddedLogPrefix, url))
	return ns, url, nil
}
