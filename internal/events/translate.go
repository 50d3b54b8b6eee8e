package events

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TopicFilter is the wildcard filter covering everything GonoPBX publishes.
const TopicFilter = "gonopbx/#"

// QoS is the subscription quality of service (at least once).
const QoS byte = 1

// Event types fired for call lifecycle topics.
const (
	TypeCallStarted  = "gonopbx_call_started"
	TypeCallAnswered = "gonopbx_call_answered"
	TypeCallEnded    = "gonopbx_call_ended"
)

var topicTypes = map[string]string{
	"gonopbx/call/started":  TypeCallStarted,
	"gonopbx/call/answered": TypeCallAnswered,
	"gonopbx/call/ended":    TypeCallEnded,
}

// Event is a bus event derived from one MQTT message.
type Event struct {
	Type       string         `json:"type"`
	Topic      string         `json:"topic"`
	Data       map[string]any `json:"data"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Translate maps an MQTT message to an [Event].
//
// Only the call lifecycle topics produce an event; ok is false for anything
// else. A payload that is not a JSON object is delivered as {"value": raw},
// where raw is the payload text, or the decoded value for JSON scalars and
// arrays. ReceivedAt is left zero for the caller to stamp.
func Translate(topic string, payload []byte) (ev Event, ok bool) {
	typ, ok := topicTypes[topic]
	if !ok {
		return Event{}, false
	}
	return Event{Type: typ, Topic: topic, Data: decodePayload(payload)}, true
}

func decodePayload(payload []byte) map[string]any {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return map[string]any{"value": string(payload)}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": v}
}
