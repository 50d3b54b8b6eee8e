// Package events turns GonoPBX MQTT messages into bridge events.
//
// [Translate] is a pure mapping from an MQTT topic and payload to an [Event].
// A [Subscriber] attaches it to a [Broker], and [PahoBroker] is the Broker
// backed by an Eclipse Paho client. The event stream runs independently of
// the polling coordinators.
package events
