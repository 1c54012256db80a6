package wstestclient

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Counter of handshake attempts, by outcome
	metricHandshakes = namespace + ".handshakes"
	// Counter of sent text messages
	metricMessagesSent = namespace + ".messages.sent"
	// Counter of received text messages
	metricMessagesReceived = namespace + ".messages.received"

	// Attribute used to indicate handshake outcome
	attrOutcome = "outcome"

	// Handshake outcomes
	outcomeSuccess     = "success"
	outcomeRejected    = "rejected"
	outcomeFailure     = "failure"
	outcomeInterrupted = "interrupted"
)

// Counters maintained by a websocket test client.
type clientMetrics struct {
	handshakes       metric.Int64Counter
	messagesSent     metric.Int64Counter
	messagesReceived metric.Int64Counter
}

// Create the client counters from the provided meter.
func newClientMetrics(meter metric.Meter) (*clientMetrics, error) {
	handshakes, err := meter.Int64Counter(metricHandshakes,
		metric.WithDescription("Number of websocket handshakes attempted by the client"),
		metric.WithUnit("{handshake}"))
	if err != nil {
		return nil, err
	}
	sent, err := meter.Int64Counter(metricMessagesSent,
		metric.WithDescription("Number of text messages sent by the client"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}
	received, err := meter.Int64Counter(metricMessagesReceived,
		metric.WithDescription("Number of text messages received by the client"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}
	return &clientMetrics{
		handshakes:       handshakes,
		messagesSent:     sent,
		messagesReceived: received,
	}, nil
}

func (m *clientMetrics) recordHandshake(ctx context.Context, library string, outcome string) {
	m.handshakes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOutcome, outcome),
		attribute.String(attrLibrary, library)))
}

func (m *clientMetrics) recordSent(ctx context.Context, library string) {
	m.messagesSent.Add(ctx, 1, metric.WithAttributes(attribute.String(attrLibrary, library)))
}

func (m *clientMetrics) recordReceived(ctx context.Context, library string) {
	m.messagesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String(attrLibrary, library)))
}
