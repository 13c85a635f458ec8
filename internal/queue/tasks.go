package queue

import "time"

const (
	TypeOperatorAlert = "operator:alert"
)

// OperatorAlertPayload is the wire form of alert.Alert.
type OperatorAlertPayload struct {
	Kind     string    `json:"kind"`
	Provider string    `json:"provider,omitempty"`
	Task     string    `json:"task,omitempty"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}
