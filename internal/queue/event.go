// Package queue defines message payloads exchanged over the message broker.
package queue

import (
    "time"

    "github.com/iliyamo/userdata-registry/internal/model"
)

// Event names published on the userdata events queue.
const (
    EventCreated = "userdata.created"
    EventUpdated = "userdata.updated"
    EventDeleted = "userdata.deleted"
)

// UserDataEvent is published after a userdata record is created, updated
// or deleted.  Contact details (email, phone) are never included.
type UserDataEvent struct {
    Event          string `json:"event"`
    ID             uint64 `json:"id"`
    RegistrationID string `json:"registrationid"`
    Type           string `json:"type"`
    Name           string `json:"name"`
    OccurredAt     string `json:"occurred_at"`
}

// NewUserDataEvent builds an event for d stamped at the given time.
func NewUserDataEvent(event string, d *model.UserData, at time.Time) UserDataEvent {
    return UserDataEvent{
        Event:          event,
        ID:             d.ID,
        RegistrationID: d.RegistrationID,
        Type:           d.Type,
        Name:           d.Name,
        OccurredAt:     at.UTC().Format(time.RFC3339Nano),
    }
}
