// Package util holds helpers for tests that need a live MQTT broker or a
// scraped metrics endpoint.
package util

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/taskalloc/pkg/export"
)

const (
	MosquittoReadyTimeout = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	mosquittoImage = "eclipse-mosquitto:2.0"
	pollInterval   = 50 * time.Millisecond
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
connection_messages true
`

// WaitForMetric scrapes metricsURL until a line containing series shows up.
func WaitForMetric(ctx context.Context, metricsURL, series string) error {
	for {
		if found, err := scrape(ctx, metricsURL, series); err != nil {
			return err
		} else if found {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("series %q not exposed: %w", series, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func scrape(ctx context.Context, metricsURL, series string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, nil
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read metrics body: %w", err)
	}
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, series) {
			return true, nil
		}
	}
	return false, nil
}

// StartMosquitto runs an anonymous Mosquitto broker in a container. It
// returns the tcp:// broker URL and a cleanup func that stops the container.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	dir, err := os.MkdirTemp("", "taskalloc-mosq")
	if err != nil {
		return "", nil, err
	}
	confPath := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(confPath, []byte(mosquittoConf), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}

	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        mosquittoImage,
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
			Files: []tc.ContainerFile{{
				HostFilePath:      confPath,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
		},
		Started: true,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, err
	}
	cleanup := func() {
		_ = cont.Terminate(context.Background())
		_ = os.RemoveAll(dir)
	}

	endpoint, err := cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		cleanup()
		return "", nil, err
	}

	readyCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	probe, err := Connect(readyCtx, endpoint, "taskalloc-probe")
	if err != nil {
		cleanup()
		return "", nil, err
	}
	probe.Disconnect(100)
	return endpoint, cleanup, nil
}

// Connect dials broker until it accepts a connection or ctx is done.
func Connect(ctx context.Context, broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	for {
		cli := paho.NewClient(opts)
		tok := cli.Connect()
		if tok.Wait() && tok.Error() == nil {
			return cli, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("broker %s not ready: %w", broker, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// RecordObserver subscribes to a result topic and decodes every message as
// an allocation record. Undecodable payloads are dropped.
type RecordObserver struct {
	cli     paho.Client
	Records chan export.Record
}

// ObserveRecords connects an observer client to broker and subscribes it to
// topic at qos.
func ObserveRecords(ctx context.Context, broker, topic string, qos byte) (*RecordObserver, error) {
	cli, err := Connect(ctx, broker, "taskalloc-observer")
	if err != nil {
		return nil, err
	}
	o := &RecordObserver{cli: cli, Records: make(chan export.Record, 8)}
	tok := cli.Subscribe(topic, qos, func(_ paho.Client, m paho.Message) {
		var rec export.Record
		if err := json.Unmarshal(m.Payload(), &rec); err == nil {
			o.Records <- rec
		}
	})
	if tok.Wait() && tok.Error() != nil {
		cli.Disconnect(100)
		return nil, tok.Error()
	}
	return o, nil
}

// Publish sends payload on topic from the observer connection.
func (o *RecordObserver) Publish(topic string, qos byte, payload []byte) error {
	tok := o.cli.Publish(topic, qos, false, payload)
	tok.Wait()
	return tok.Error()
}

// Close disconnects the observer.
func (o *RecordObserver) Close() { o.cli.Disconnect(100) }
