package models

import "time"

// NotificationKind names the message a parent receives
type NotificationKind string

const (
	NotificationConfirmation NotificationKind = "confirmation"
	NotificationResults      NotificationKind = "results"
	NotificationWaitlist     NotificationKind = "waitlist"
)

// ClubChoice is one club line in a notification. Choice carries the rank
// for confirmations and the placement preference for results.
type ClubChoice struct {
	ClubID   string `json:"clubId"`
	ClubName string `json:"clubName"`
	Choice   int    `json:"choice"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Notification is the payload handed to the mail worker.
// Rendering is the worker's job; this carries data only.
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	To          string           `json:"to"`
	ParentName  string           `json:"parentName"`
	StudentName string           `json:"studentName"`
	Grade       Grade            `json:"grade"`
	Clubs       []ClubChoice     `json:"clubs"`
	CreatedAt   time.Time        `json:"createdAt"`
}
