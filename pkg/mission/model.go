// Package mission holds the mission and crew aggregates: events, documents,
// command handlers, projection, and live view.
package mission

import "time"

// Topic names are part of the wire contract.
const (
	TopicCreated     = "mission_created"
	TopicUpdated     = "mission_updated"
	TopicCrewUpdated = "crew_member_updated"
)

// Role is a crew member's role on a mission.
type Role string

const (
	RoleLeader Role = "LEADER"
	RoleMember Role = "MEMBER"
)

// Mission is the public view of the mission aggregate.
type Mission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
}

// CrewEntry is one astronaut's membership on a mission.
type CrewEntry struct {
	AstronautID string `json:"astronaut_id"`
	Roles       []Role `json:"roles"`
}

// View combines a mission with its crew; it is what live subscribers see.
type View struct {
	Mission
	Crew []CrewEntry `json:"crew"`
}

// Document is the missions collection row.
type Document struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	StartDate time.Time `bson:"start_date"`
}

// View strips the document down to its public shape.
func (d *Document) View() Mission {
	return Mission{ID: d.ID, Name: d.Name, StartDate: d.StartDate}
}

// CrewDocument is the crew collection row. Uniqueness is on the
// (mission_id, astronaut_id) pair; the _id is synthetic.
type CrewDocument struct {
	ID          string `bson:"_id"`
	MissionID   string `bson:"mission_id"`
	AstronautID string `bson:"astronaut_id"`
	Roles       []Role `bson:"roles"`
}

// crewRolesPatch is the $set patch applied when a crew row already exists.
type crewRolesPatch struct {
	Roles []Role `bson:"roles"`
}

// CreatedEvent is the payload of TopicCreated.
type CreatedEvent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
}

// UpdatedEvent is the payload of TopicUpdated. Present fields change,
// absent fields stay.
type UpdatedEvent struct {
	ID        string     `json:"id"`
	Name      *string    `json:"name,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
}

// CrewUpdatedEvent is the payload of TopicCrewUpdated. Empty roles means
// the astronaut leaves the crew.
type CrewUpdatedEvent struct {
	MissionID   string `json:"mission_id"`
	AstronautID string `json:"astronaut_id"`
	Roles       []Role `json:"roles"`
}

// updateDocument is the $set patch derived from an UpdatedEvent.
type updateDocument struct {
	Name      *string    `bson:"name,omitempty"`
	StartDate *time.Time `bson:"start_date,omitempty"`
}

func documentFromCreated(ev *CreatedEvent) Document {
	return Document{ID: ev.ID, Name: ev.Name, StartDate: ev.StartDate}
}

func updateFromEvent(ev *UpdatedEvent) updateDocument {
	return updateDocument{Name: ev.Name, StartDate: ev.StartDate}
}

// Apply folds a mission update event into the view.
func (v *View) Apply(ev *UpdatedEvent) {
	if ev.Name != nil {
		v.Name = *ev.Name
	}
	if ev.StartDate != nil {
		v.StartDate = *ev.StartDate
	}
}

// ApplyCrew folds a crew update event into the view: upsert on non-empty
// roles, removal on empty.
func (v *View) ApplyCrew(ev *CrewUpdatedEvent) {
	for i, entry := range v.Crew {
		if entry.AstronautID != ev.AstronautID {
			continue
		}
		if len(ev.Roles) == 0 {
			v.Crew = append(v.Crew[:i], v.Crew[i+1:]...)
		} else {
			v.Crew[i].Roles = ev.Roles
		}
		return
	}
	if len(ev.Roles) != 0 {
		v.Crew = append(v.Crew, CrewEntry{AstronautID: ev.AstronautID, Roles: ev.Roles})
	}
}

// CreateInput is the command input for a new mission.
type CreateInput struct {
	Name      string
	StartDate time.Time
}

// UpdateInput is the command input for a mission patch.
type UpdateInput struct {
	Name      *string
	StartDate *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (in UpdateInput) IsEmpty() bool {
	return in.Name == nil && in.StartDate == nil
}

// UpdateCrewInput assigns roles to an astronaut on a mission. Empty roles
// removes the astronaut from the crew.
type UpdateCrewInput struct {
	MissionID   string
	AstronautID string
	Roles       []Role
}
