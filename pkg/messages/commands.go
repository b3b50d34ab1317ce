package messages

import (
	"github.com/google/uuid"

	"netagent/pkg/models"
)

// NewRequest starts one request's pipeline on its conductor actor. Events is
// optional: when set, the conductor streams progress events into it and
// closes it when the request finishes; when nil the caller gets the result
// through the actor's response.
type NewRequest struct {
	RequestID uuid.UUID
	Question  string
	Events    chan models.Event
}

type GetStatus struct{}

// Status is the conductor's answer to GetStatus.
type Status struct {
	Running bool           `json:"running"`
	Result  *models.Result `json:"result,omitempty"`
}
