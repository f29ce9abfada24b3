package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConfig holds the endpoint and trust material for dialing a
// hydromaas daemon.
type ClientConfig struct {
	Host             string
	Port             int
	CAFile           string // PEM bundle trusted for the server cert; empty means system roots
	InsecureSkip     bool   // skip server cert verification, test deployments only
	HandshakeTimeout time.Duration
}

// Client dials wss endpoints and returns message-oriented connections.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer
}

// NewClient builds a client, loading the CA bundle if one is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkip,
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle %s: %w", cfg.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			TLSClientConfig:  tlsCfg,
			HandshakeTimeout: timeout,
		},
	}, nil
}

// Dial opens one connection to the configured endpoint.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	u := url.URL{
		Scheme: "wss",
		Host:   net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port)),
		Path:   "/",
	}

	ws, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	return newConn(ws), nil
}
