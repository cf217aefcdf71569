// Package events carries session and request activity from the ORGB server to
// side channels such as MQTT, InfluxDB, the audit log and the live WebSocket
// feed.
//
// Publishing never blocks the caller. Events are queued on a bounded channel
// and handed to every registered Sink by a fixed pool of workers. When a queue
// is full the event is dropped and counted. Events for one session always land
// on the same worker, so a sink sees a session's events in order.
package events
