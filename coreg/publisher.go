package coreg

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ResultsMessage is the payload published after each reconciliation.
type ResultsMessage struct {
	Entry     string              `json:"entry"`
	Results   []*PositionedResult `json:"results"`
	Report    MergeReport         `json:"report"`
	Timestamp int64               `json:"timestamp"`
}

// Publisher publishes reconciled result sets to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	published     map[string]*ResultsMessage
	mu            sync.RWMutex
}

// NewPublisher creates a new results publisher.
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "stagealign"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // Retain so late subscribers see the latest result set
		published:     make(map[string]*ResultsMessage),
	}
}

// PublishResults publishes an entry's reconciled result set to
// {prefix}/{entryID}/results
func (p *Publisher) PublishResults(entryID string, results []*PositionedResult, report MergeReport) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	message := &ResultsMessage{
		Entry:     entryID,
		Results:   results,
		Report:    report,
		Timestamp: time.Now().Unix(),
	}

	p.mu.Lock()
	p.published[entryID] = message
	p.mu.Unlock()

	topic := fmt.Sprintf("%s/%s/results", p.publishPrefix, entryID)

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published %d results for %s (%d created, %d updated)",
		len(results), entryID, report.Created, report.Updated)
	return nil
}

// GetPublished returns the last published message for an entry
func (p *Publisher) GetPublished(entryID string) (*ResultsMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	msg, ok := p.published[entryID]
	return msg, ok
}

// SetPrefix overrides the publish topic prefix. The MQTT_PUBLISH_PREFIX env
// var still wins at construction time, so callers should only apply config
// values when the env var is unset.
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
