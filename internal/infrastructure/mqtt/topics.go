package mqtt

import "fmt"

// TopicPrefix is the root of every DREAMS topic.
const TopicPrefix = "dreams"

// Topics builds DREAMS topic names.
//
//	topics := mqtt.Topics{}
//	topics.Request("poll")      // dreams/request/poll
//	topics.Response("req-1234") // dreams/response/req-1234
type Topics struct{}

// Request returns the topic operators publish control requests to.
//
// Example: dreams/request/control
func (Topics) Request(op string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefix, op)
}

// AllRequests matches every request topic.
func (Topics) AllRequests() string {
	return TopicPrefix + "/request/+"
}

// Response returns the reply topic for one request.
//
// Example: dreams/response/3f0c1a52-...
func (Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefix, requestID)
}

// DispatchEvent returns the topic announcing dispatch outcomes for a plant.
// Uncertain outcomes are published here so a supervisor can re-poll.
//
// Example: dreams/event/dispatch/PL1
func (Topics) DispatchEvent(plantNo string) string {
	return fmt.Sprintf("%s/event/dispatch/%s", TopicPrefix, plantNo)
}

// SystemStatus carries the retained online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
