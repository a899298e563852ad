package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/taskalloc/auth"
	coremon "github.com/kilianp07/taskalloc/core/monitoring"
	coremqtt "github.com/kilianp07/taskalloc/core/mqtt"
	"github.com/kilianp07/taskalloc/infra/logger"
	"github.com/kilianp07/taskalloc/pkg/export"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker           string          `json:"broker"`
	ClientID         string          `json:"client_id"`
	Username         string          `json:"username"`
	Password         string          `json:"password"`
	ResultTopic      string          `json:"result_topic"`
	SituationTopic   string          `json:"situation_topic"`
	AgentTopicPrefix string          `json:"agent_topic_prefix"`
	Retain           bool            `json:"retain"`
	UseTLS           bool            `json:"use_tls"`
	ClientCert       string          `json:"client_cert"`
	ClientKey        string          `json:"client_key"`
	CABundle         string          `json:"ca_bundle"`
	AuthMethod       string          `json:"auth_method"`
	OAuth            auth.Conf       `json:"oauth"`
	QoS              map[string]byte `json:"qos"`
	LWTTopic         string          `json:"lwt_topic"`
	LWTPayload       string          `json:"lwt_payload"`
	LWTQoS           byte            `json:"lwt_qos"`
	LWTRetain        bool            `json:"lwt_retain"`
	MaxRetries       int             `json:"max_retries"`
	BackoffMS        int             `json:"backoff_ms"`
	TimeoutMS        int             `json:"timeout_ms"`
	TLSConfig        *tls.Config     `json:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "taskalloc-" + uuid.NewString()[:8]
	}
	if c.ResultTopic == "" {
		c.ResultTopic = "taskalloc/result"
	}
	if c.SituationTopic == "" {
		c.SituationTopic = "taskalloc/situation"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

// Validate checks the authentication settings.
func (c Config) Validate() error {
	switch c.AuthMethod {
	case "", "username_password", "both", "tls":
		return nil
	case "oauth2":
		return c.OAuth.Validate()
	default:
		return fmt.Errorf("unknown auth_method %q", c.AuthMethod)
	}
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient publishes allocation records and receives situation updates
// using Eclipse Paho.
type PahoClient struct {
	cli            pahoClient
	resultTopic    string
	situationTopic string
	agentPrefix    string
	retain         bool
	qos            map[string]byte

	mu         sync.Mutex
	handler    func([]byte)
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

var _ coremqtt.Client = (*PahoClient)(nil)

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker. Situation subscriptions are
// restored on every (re)connect.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	pc := &PahoClient{
		resultTopic:    cfg.ResultTopic,
		situationTopic: cfg.SituationTopic,
		agentPrefix:    cfg.AgentTopicPrefix,
		retain:         cfg.Retain,
		qos:            cfg.QoS,
		logger:         logger,
		maxRetries:     cfg.MaxRetries,
		backoff:        time.Duration(cfg.BackoffMS) * time.Millisecond,
		timeout:        time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		pc.mu.Lock()
		h := pc.handler
		pc.mu.Unlock()
		if h != nil {
			if err := pc.subscribe(c); err != nil {
				logger.Errorf("subscribe error: %v", err)
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.AuthMethod == "oauth2" {
		if err := cfg.OAuth.Validate(); err != nil {
			return nil, err
		}
		cred := auth.NewClientCred(cfg.OAuth)
		opts.SetCredentialsProvider(cred.Credentials(cfg.Username, logger.New("mqtt_oauth")))
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// SubscribeSituations registers handler for payloads received on the
// situation topic. Only the last registered handler is kept.
func (p *PahoClient) SubscribeSituations(handler func([]byte)) error {
	if p.situationTopic == "" {
		return coremqtt.ErrNoTopic
	}
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
	return p.subscribe(p.cli)
}

func (p *PahoClient) subscribe(c pahoClient) error {
	token := c.Subscribe(p.situationTopic, p.qosFor("situation"), p.onSituation)
	if !token.WaitTimeout(p.timeout) {
		return coremqtt.ErrPublishTimeout
	}
	return token.Error()
}

func (p *PahoClient) onSituation(_ paho.Client, msg paho.Message) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return
	}
	p.logger.Debugf("situation received on %s (%d bytes)", msg.Topic(), len(msg.Payload()))
	h(msg.Payload())
}

// PublishResult publishes rec as JSON on the result topic, retrying with
// exponential backoff. When an agent topic prefix is configured every agent
// also receives its own assignment.
func (p *PahoClient) PublishResult(ctx context.Context, rec export.Record) error {
	if p.resultTopic == "" {
		return coremqtt.ErrNoTopic
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := p.publish(ctx, p.resultTopic, p.qosFor("result"), p.retain, payload); err != nil {
		coremon.CaptureException(err, map[string]string{"module": "mqtt", "run_id": rec.RunID, "topic": p.resultTopic})
		return err
	}
	p.logger.Infof("published run %s to %s", rec.RunID, p.resultTopic)

	if p.agentPrefix == "" {
		return nil
	}
	for _, a := range assignments(rec) {
		body, err := json.Marshal(a)
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/%s/assignment", p.agentPrefix, a.AgentID)
		if err := p.publish(ctx, topic, p.qosFor("agent"), p.retain, body); err != nil {
			coremon.CaptureException(err, map[string]string{"module": "mqtt", "run_id": rec.RunID, "agent_id": a.AgentID})
			return err
		}
	}
	return nil
}

func (p *PahoClient) publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retain, payload)
		if !token.WaitTimeout(p.timeout) {
			publishErr = coremqtt.ErrPublishTimeout
		} else {
			publishErr = token.Error()
		}
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return publishErr
}

// Assignment is the per-agent message published under the agent prefix.
type Assignment struct {
	RunID   string `json:"run_id"`
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
	GroupID int    `json:"group_id"`
}

func assignments(rec export.Record) []Assignment {
	var out []Assignment
	for _, g := range rec.Groups {
		for _, id := range g.DefenseAgents {
			out = append(out, Assignment{RunID: rec.RunID, AgentID: id, Role: "defense", GroupID: g.GroupID})
		}
		for _, id := range g.AttackAgents {
			out = append(out, Assignment{RunID: rec.RunID, AgentID: id, Role: "attack", GroupID: g.GroupID})
		}
	}
	return out
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
