package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ProgressMessage is the JSON payload published per driver iteration.
type ProgressMessage struct {
	Job       string  `json:"job"`
	Stage     string  `json:"stage"`
	Level     int     `json:"level"`
	Iteration int     `json:"iteration"`
	Residual  float64 `json:"residual"`
	Timestamp int64   `json:"timestamp"`
}

// ResultMessage is the JSON payload published once a registration finishes.
type ResultMessage struct {
	Job        string  `json:"job"`
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"`
	Error      string  `json:"error,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// Publisher publishes registration progress and results to MQTT. A nil or
// disconnected client turns every publish into an error, which callers log
// and ignore so a broker outage never stalls a registration.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	retain      bool
	latest      map[string]*ProgressMessage
	mu          sync.RWMutex
}

// NewPublisher creates a progress publisher. If client is nil, publishing is
// disabled (for testing). MQTT_PUBLISH_PREFIX overrides the topic prefix.
func NewPublisher(client mqtt.Client, topicPrefix string) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = topicPrefix
	}
	if prefix == "" {
		prefix = "surfalign"
	}
	return &Publisher{
		client:      client,
		topicPrefix: prefix,
		qos:         0,
		retain:      true,
		latest:      make(map[string]*ProgressMessage),
	}
}

// PublishProgress publishes one iteration's progress to
// {prefix}/{job}/progress.
func (p *Publisher) PublishProgress(job string, info IterationInfo) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	message := &ProgressMessage{
		Job:       job,
		Stage:     info.Stage,
		Level:     info.Level,
		Iteration: info.Iteration,
		Residual:  info.Residual,
		Timestamp: time.Now().Unix(),
	}
	p.mu.Lock()
	p.latest[job] = message
	p.mu.Unlock()

	return p.publishJSON(fmt.Sprintf("%s/%s/progress", p.topicPrefix, job), message)
}

// PublishResult publishes the final outcome to {prefix}/{job}/result. A
// non-nil registration error is carried in the payload.
func (p *Publisher) PublishResult(job string, result *RegistrationResult, regErr error) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	message := &ResultMessage{
		Job:       job,
		Timestamp: time.Now().Unix(),
	}
	if result != nil {
		message.Iterations = result.Iterations
		message.Residual = result.Residual
	}
	if regErr != nil {
		message.Error = regErr.Error()
	}
	return p.publishJSON(fmt.Sprintf("%s/%s/result", p.topicPrefix, job), message)
}

func (p *Publisher) publishJSON(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, p.qos, p.retain, data)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LatestProgress returns the last progress message published for a job.
func (p *Publisher) LatestProgress(job string) (*ProgressMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	msg, ok := p.latest[job]
	return msg, ok
}

// SetQoS sets the publish Quality of Service level (0, 1 or 2).
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages are retained by the broker.
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// ProgressHook adapts the publisher to a driver OnIteration callback.
// Publish failures are logged, not propagated.
func (p *Publisher) ProgressHook(job string) func(IterationInfo) {
	return func(info IterationInfo) {
		if err := p.PublishProgress(job, info); err != nil {
			log.Printf("Error publishing progress for %s: %v", job, err)
		}
	}
}
