// Package bus wraps an MQTT broker connection behind the
// subscribe/publish/callback-registration primitives the rest of the
// satellite needs, with reconnection and an initial-connect circuit breaker
// matching the teacher's grpcclient connection-wrapper shape.
package bus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rhasspy-community/desktop-satellite/internal/apperr"
	"github.com/rhasspy-community/desktop-satellite/internal/config"
	"github.com/rhasspy-community/desktop-satellite/internal/resilience"
)

// Handler is invoked on the bus client's own dispatch goroutine whenever a
// message arrives on a topic it was subscribed for. It runs inline — long
// handlers (the playback handler in particular) deliberately block dispatch,
// per the concurrency model.
type Handler func(topic string, payload []byte)

// Client is a thin façade over paho.mqtt.golang exposing exactly the
// primitives the control router, publisher, and lifecycle orchestrator need.
type Client struct {
	inner mqtt.Client
	cb    *resilience.Breaker
}

// Dial opens a connection to the broker described by cfg, retrying the
// initial connect attempt under a circuit breaker (BusRetryConfig) so a
// momentarily-unreachable broker does not fail startup outright.
func Dial(clientID string, cfg config.MQTTConfig) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("bus connected", "host", cfg.Host, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("bus connection lost", "error", err)
	})

	if cfg.Authentication != nil {
		opts.SetUsername(cfg.Authentication.Username)
		opts.SetPassword(cfg.Authentication.Password)
	}
	if cfg.TLS != nil {
		tlsCfg, err := buildTLSConfig(*cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	c := &Client{inner: mqtt.NewClient(opts), cb: resilience.New(resilience.DefaultConfig())}

	err := resilience.Retry(context.Background(), resilience.BusRetryConfig(), func() error {
		if err := c.cb.Allow(); err != nil {
			return err
		}
		token := c.inner.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			c.cb.Failure()
			return apperr.Wrap(apperr.BusConnect, "mqtt connect", err)
		}
		c.cb.Success()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CACertificates != "" {
		pem, err := os.ReadFile(cfg.CACertificates)
		if err != nil {
			return nil, apperr.Wrap(apperr.BusConnect, "read ca_certificates", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, apperr.New(apperr.BusConnect, "ca_certificates contains no valid certificates")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.ClientCertificate != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertificate, cfg.ClientKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.BusConnect, "load client certificate", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// Subscribe registers handler for topic (which may contain MQTT wildcards,
// e.g. a trailing "+"). The handler runs on the paho dispatch goroutine.
func (c *Client) Subscribe(topic string, handler Handler) error {
	token := c.inner.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return apperr.Wrap(apperr.BusTransient, "subscribe "+topic, err)
	}
	return nil
}

// Publish sends payload on topic. A publish refusal while disconnected is a
// BusTransient error; the bus client's own reconnection logic, not the
// pipeline, is responsible for recovering.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.inner.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return apperr.Wrap(apperr.BusTransient, "publish "+topic, err)
	}
	return nil
}

// Disconnect closes the connection, waiting up to quiesce for in-flight
// work to drain.
func (c *Client) Disconnect(quiesce time.Duration) {
	c.inner.Disconnect(uint(quiesce.Milliseconds()))
}
