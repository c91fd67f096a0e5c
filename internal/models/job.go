package models

import "time"

// JobState is the delivery state of a notification job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRetrying  JobState = "retrying"
	JobSent      JobState = "sent"
	JobAbandoned JobState = "abandoned"
)

// NotificationJob tracks one alert through delivery.
// Transitions: pending -> sent, pending -> retrying -> pending,
// retrying -> abandoned. Sent and abandoned are terminal.
type NotificationJob struct {
	Signature string    `json:"signature"`
	Mint      string    `json:"mint"`
	Payload   string    `json:"payload"`
	ChatID    string    `json:"chat_id"`
	Attempts  int       `json:"attempts"`
	State     JobState  `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the job can make no further transitions.
func (j *NotificationJob) Terminal() bool {
	return j.State == JobSent || j.State == JobAbandoned
}
