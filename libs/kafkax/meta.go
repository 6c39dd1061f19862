package kafkax

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID     = "event_id"
	HeaderEventType   = "event_type"
	HeaderAggregateID = "aggregate_id"
	HeaderOccurredAt  = "occurred_at"
)

// EventMeta is the metadata carried on every scheduling event message.
type EventMeta struct {
	EventID     string
	EventType   string
	AggregateID string
	OccurredAt  time.Time
}

// Headers renders meta as Kafka headers. Empty fields are omitted.
func (m EventMeta) Headers() []kafka.Header {
	headers := make([]kafka.Header, 0, 4)
	add := func(k, v string) {
		if v != "" {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	add(HeaderEventID, m.EventID)
	add(HeaderEventType, m.EventType)
	add(HeaderAggregateID, m.AggregateID)
	if !m.OccurredAt.IsZero() {
		add(HeaderOccurredAt, m.OccurredAt.UTC().Format(time.RFC3339Nano))
	}
	return headers
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:     HeaderValue(msg.Headers, HeaderEventID),
		EventType:   HeaderValue(msg.Headers, HeaderEventType),
		AggregateID: HeaderValue(msg.Headers, HeaderAggregateID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	if ts := HeaderValue(msg.Headers, HeaderOccurredAt); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			meta.OccurredAt = t
		}
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
