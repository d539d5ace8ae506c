package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on Stop.
	defaultDisconnectQuiesce = 250 // milliseconds

	// maxReconnectInterval caps paho's own reconnect backoff.
	maxReconnectInterval = 30 * time.Second

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// defaultPorts are used when the broker URI omits a port.
var defaultPorts = map[string]string{
	"mqtt":  "1883",
	"tcp":   "1883",
	"mqtts": "8883",
	"ssl":   "8883",
	"tls":   "8883",
	"ws":    "80",
	"wss":   "443",
}

// ClientConfig is the broker-client configuration built from the connection
// profile for a single connect attempt.
type ClientConfig struct {
	// URI is the broker endpoint, e.g. mqtt://broker.local:1883 or mqtts://host.
	URI      string
	Username string
	Password string

	ClientID string

	// AutoReconnect lets the library reconnect by itself after a lost connection.
	AutoReconnect bool

	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	// InsecureSkipVerify disables certificate verification on TLS schemes.
	InsecureSkipVerify bool
}

// normaliseURI validates the scheme and fills in the default port.
func normaliseURI(raw string) (string, bool, error) {
	if raw == "" {
		return "", false, fmt.Errorf("%w: empty", ErrInvalidURI)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	scheme := strings.ToLower(u.Scheme)
	port, ok := defaultPorts[scheme]
	if !ok {
		return "", false, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", false, fmt.Errorf("%w: missing host", ErrInvalidURI)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	u.Scheme = scheme

	secure := scheme == "mqtts" || scheme == "ssl" || scheme == "tls" || scheme == "wss"
	return u.String(), secure, nil
}

// buildClientOptions creates paho options from a ClientConfig.
//
// Reconnection policy comes from the profile: AutoReconnect maps to paho's
// auto-reconnect, while the initial connect is never retried by the library.
// A failed first attempt surfaces as error and disconnected events so the
// caller's retry timer decides what happens next.
func buildClientOptions(cfg ClientConfig) (*pahomqtt.ClientOptions, error) {
	broker, secure, err := normaliseURI(cfg.URI)
	if err != nil {
		return nil, err
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(cfg.AutoReconnect)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(maxReconnectInterval)

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if secure {
		opts.SetTLSConfig(&tls.Config{
			MinVersion:         tlsMinVersion,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Opt-in for self-signed brokers on the LAN
		})
	}

	return opts, nil
}
