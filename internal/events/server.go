package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Bus is a NATS connection plus, when embedded, the server behind it.
type Bus struct {
	Conn   *nats.Conn
	server *server.Server
}

// Open connects to url, or starts an in-process server when url is empty
// or "embedded".
func Open(url string) (*Bus, error) {
	url = strings.TrimSpace(url)
	if url != "" && url != "embedded" {
		nc, err := nats.Connect(url, nats.Name("headshot-service"))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		return &Bus{Conn: nc}, nil
	}

	ns, err := StartEmbedded()
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect in-process nats: %w", err)
	}
	return &Bus{Conn: nc, server: ns}, nil
}

// StartEmbedded starts a NATS server that accepts only in-process clients.
func StartEmbedded() (*server.Server, error) {
	ns, err := server.NewServer(&server.Options{DontListen: true})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("nats server failed to start within timeout")
	}
	return ns, nil
}

// Close drains the connection and stops the embedded server, if any.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}

	if b.Conn != nil {
		drained := make(chan error, 1)
		go func() { drained <- b.Conn.Drain() }()

		select {
		case err := <-drained:
			if err != nil {
				b.Conn.Close()
			}
		case <-time.After(2 * time.Second):
			b.Conn.Close()
		}
	}

	if b.server != nil {
		b.server.Shutdown()
		done := make(chan struct{})
		go func() {
			b.server.WaitForShutdown()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			return errors.New("nats server shutdown timed out")
		}
	}
	return nil
}
