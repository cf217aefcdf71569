package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "orgb"

// Topics builds orgbd MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("orgb")
//	topics.DeviceState(0)      // "orgb/state/0"
//	topics.SessionEvent("ses-1") // "orgb/session/ses-1"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Leading and trailing slashes are
// trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// DeviceState returns the retained state topic for the controller at index.
//
// Example: orgb/state/0
func (t Topics) DeviceState(index uint32) string {
	return fmt.Sprintf("%s/state/%d", t.prefix, index)
}

// SessionEvent returns the topic for lifecycle events of one client session.
//
// Example: orgb/session/ses-1a2b3c4d
func (t Topics) SessionEvent(sessionID string) string {
	return fmt.Sprintf("%s/session/%s", t.prefix, sessionID)
}

// SystemStatus returns the retained online/offline topic, also used for LWT.
//
// Example: orgb/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// AllDeviceStates returns a wildcard matching every device state topic.
func (t Topics) AllDeviceStates() string {
	return t.prefix + "/state/+"
}

// AllSessionEvents returns a wildcard matching every session topic.
func (t Topics) AllSessionEvents() string {
	return t.prefix + "/session/+"
}
