// Package astronaut holds the astronaut aggregate: its events, documents,
// command handlers, projection, and live view.
package astronaut

import "time"

// Topic names are part of the wire contract.
const (
	TopicCreated = "astronaut_created"
	TopicUpdated = "astronaut_updated"
)

// Astronaut is the public view of the aggregate. The password hash never
// leaves the store layer.
type Astronaut struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BirthDate time.Time `json:"birth_date"`
}

// Document is the astronauts collection row.
type Document struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	BirthDate    time.Time `bson:"birth_date"`
}

// View strips the document down to its public shape.
func (d *Document) View() Astronaut {
	return Astronaut{ID: d.ID, Name: d.Name, BirthDate: d.BirthDate}
}

// CreatedEvent is the payload of TopicCreated.
type CreatedEvent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	BirthDate    time.Time `json:"birth_date"`
}

// UpdatedEvent is the payload of TopicUpdated. A present field means
// "change to this value"; an absent field means "unchanged".
type UpdatedEvent struct {
	ID           string     `json:"id"`
	Name         *string    `json:"name,omitempty"`
	PasswordHash *string    `json:"password_hash,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
}

// updateDocument is the $set patch derived from an UpdatedEvent.
type updateDocument struct {
	Name         *string    `bson:"name,omitempty"`
	PasswordHash *string    `bson:"password_hash,omitempty"`
	BirthDate    *time.Time `bson:"birth_date,omitempty"`
}

func documentFromCreated(ev *CreatedEvent) Document {
	return Document{
		ID:           ev.ID,
		Name:         ev.Name,
		PasswordHash: ev.PasswordHash,
		BirthDate:    ev.BirthDate,
	}
}

func updateFromEvent(ev *UpdatedEvent) updateDocument {
	return updateDocument{
		Name:         ev.Name,
		PasswordHash: ev.PasswordHash,
		BirthDate:    ev.BirthDate,
	}
}

// Apply folds an update event into the view.
func (a *Astronaut) Apply(ev *UpdatedEvent) {
	if ev.Name != nil {
		a.Name = *ev.Name
	}
	if ev.BirthDate != nil {
		a.BirthDate = *ev.BirthDate
	}
}

// CreateInput is the command input for a new astronaut.
type CreateInput struct {
	Name      string
	Password  string
	BirthDate time.Time
}

// UpdateInput is the command input for a patch. Nil fields are unchanged.
type UpdateInput struct {
	Name      *string
	Password  *string
	BirthDate *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (in UpdateInput) IsEmpty() bool {
	return in.Name == nil && in.Password == nil && in.BirthDate == nil
}
