// Package websocket implements the real-time pub/sub hub that pushes scan,
// discovery, and removal progress events to the desktop shell. It uses
// gorilla/websocket under the hood and exposes a topic-based broadcast API
// consumed by the scanner orchestrator, removal worker, discovery scanner,
// and scheduler.
//
// Topic naming convention:
//
//	scan:<job_id>        — progress and completion for a specific scan job
//	discovery:<vault_id> — filesystem discovery scan completion/error for a vault
//	removal:<vault_id>   — removal attempt status changes for a vault
package websocket

// MessageType identifies the kind of event carried by a Message.
// The shell uses this field to route the payload to the correct store update.
type MessageType string

const (
	// MsgScanProgress is sent as a scan job works through its broker list,
	// once per broker completed (successfully or not).
	MsgScanProgress MessageType = "scan:progress"

	// MsgScanComplete is sent once a scan job reaches a terminal status.
	MsgScanComplete MessageType = "scan:complete"

	// MsgDiscoveryComplete is sent when a filesystem discovery scan finishes
	// without error.
	MsgDiscoveryComplete MessageType = "discovery:complete"

	// MsgDiscoveryError is sent when a filesystem discovery scan aborts.
	MsgDiscoveryError MessageType = "discovery:error"

	// MsgRemovalUpdate is sent by the removal worker each time it persists
	// an attempt's outcome (Submitted, Failed, or Pending while quarantined
	// behind a CAPTCHA).
	MsgRemovalUpdate MessageType = "removal:update"

	// MsgPing is a message type reserved for pings; nothing publishes it.
	// Keep-alive uses WebSocket ping control frames sent by each client's
	// writePump.
	MsgPing MessageType = "ping"
)

// Message is the envelope for every WebSocket frame sent to the shell.
// The client deserializes this struct and dispatches on Type. Payloads carry
// only identifiers and counts, never PII.
//
// JSON example:
//
//	{"type":"scan:progress","topic":"scan:018f...","payload":{"scan_job_id":"018f...","completed_brokers":4,"total_brokers":12}}
type Message struct {
	// Type identifies the kind of event so the client can route it correctly.
	Type MessageType `json:"type"`

	// Topic is the pub/sub channel this message was published on. Clients
	// use it to associate the update with the correct UI element.
	Topic string `json:"topic"`

	// Payload carries the event-specific data. The shape varies by Type:
	//   - scan:progress:      {"scan_job_id":"...","completed_brokers":4,"total_brokers":12}
	//   - scan:complete:      {"scan_job_id":"...","status":"Completed"}
	//   - discovery:complete: {"findings_count":2}
	//   - discovery:error:    {"message":"..."}
	//   - removal:update:     {"attempt_id":"...","finding_id":"...","status":"Submitted"}
	Payload any `json:"payload"`
}

// ScanTopic returns the pub/sub topic for a specific scan job's events.
func ScanTopic(scanJobID string) string {
	return "scan:" + scanJobID
}

// DiscoveryTopic returns the pub/sub topic for a vault's discovery events.
func DiscoveryTopic(vaultID string) string {
	return "discovery:" + vaultID
}

// RemovalTopic returns the pub/sub topic for a vault's removal events.
func RemovalTopic(vaultID string) string {
	return "removal:" + vaultID
}
