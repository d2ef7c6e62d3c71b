package reduce

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// CurveMessage is the wire form of a reduced reflectivity curve. NaN values
// (undefined bins) are encoded as nulls.
type CurveMessage struct {
	RunID     string     `json:"runId"`
	Q         []float64  `json:"q"`
	R         []*float64 `json:"r"`
	Variance  []*float64 `json:"variance"`
	Counts    []int      `json:"counts"`
	Timestamp int64      `json:"timestamp"`
}

func curveMessage(curve *Curve) *CurveMessage {
	msg := &CurveMessage{
		RunID:     curve.RunID,
		Q:         curve.QEdges.Midpoints(),
		R:         make([]*float64, len(curve.R)),
		Variance:  make([]*float64, len(curve.Variance)),
		Counts:    append([]int(nil), curve.Counts...),
		Timestamp: time.Now().Unix(),
	}
	for i := range curve.R {
		if !math.IsNaN(curve.R[i]) {
			r, v := curve.R[i], curve.Variance[i]
			msg.R[i] = &r
			msg.Variance[i] = &v
		}
	}
	return msg
}

// Publisher publishes reduced reflectivity curves to MQTT so downstream
// dashboards can pick them up. Curves go to an individual per-run topic and
// a combined topic holding the latest curve of every run.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	retain      bool
	curves      map[string]*CurveMessage
	mu          sync.RWMutex
}

// NewPublisher creates a curve publisher. If client is nil, publishing is
// disabled (for testing).
func NewPublisher(client mqtt.Client, topicPrefix string) *Publisher {
	if prefix := os.Getenv("MQTT_PUBLISH_PREFIX"); prefix != "" {
		topicPrefix = prefix
	}
	if topicPrefix == "" {
		topicPrefix = "reflred"
	}
	return &Publisher{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         0,
		retain:      true, // retain so late subscribers see the latest curve
		curves:      make(map[string]*CurveMessage),
	}
}

// PublishCurve publishes a reduced curve to its individual topic and updates
// the combined topic.
func (p *Publisher) PublishCurve(curve *Curve) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := curveMessage(curve)

	p.mu.Lock()
	p.curves[curve.RunID] = msg
	p.mu.Unlock()

	if err := p.publishIndividual(msg); err != nil {
		log.Printf("Error publishing curve for %s: %v", curve.RunID, err)
		return err
	}
	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined curves: %v", err)
		return err
	}
	return nil
}

func (p *Publisher) publishIndividual(msg *CurveMessage) error {
	topic := fmt.Sprintf("%s/%s", p.topicPrefix, msg.RunID)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling curve: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published curve for %s: %d bins", msg.RunID, len(msg.Q))
	return nil
}

func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	curves := make([]*CurveMessage, 0, len(p.curves))
	for _, msg := range p.curves {
		curves = append(curves, msg)
	}
	p.mu.RUnlock()

	if len(curves) == 0 {
		return nil
	}

	topic := fmt.Sprintf("%s/curves", p.topicPrefix)
	message := map[string]interface{}{
		"curves":    curves,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling combined curves: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
