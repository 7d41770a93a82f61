package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidPayload = errors.New("invalid payload")

// Entity describes one synchronized entity type: where it lives locally,
// which remote collection mirrors it and how its payload is validated.
type Entity struct {
	// Name is the stable key used for cursors, logging and the registry.
	Name string
	// Table is the local SQLite table.
	Table string
	// Collection is the remote document collection.
	Collection string
	// HardDelete marks entities whose deletion must remove the remote
	// document instead of tombstoning it.
	HardDelete bool

	validate func(json.RawMessage) error
}

// Validate decodes data into the entity's typed payload.
func (e Entity) Validate(data json.RawMessage) error {
	if e.validate == nil {
		return nil
	}
	if err := e.validate(data); err != nil {
		return fmt.Errorf("%s: %w: %v", e.Name, ErrInvalidPayload, err)
	}
	return nil
}

var (
	Children = Entity{
		Name:       "children",
		Table:      "children",
		Collection: "children",
		validate:   validator[Child](),
	}
	Events = Entity{
		Name:       "events",
		Table:      "events",
		Collection: "events",
		HardDelete: true,
		validate:   validator[Event](),
	}
	Attendance = Entity{
		Name:       "attendance",
		Table:      "attendance",
		Collection: "attendance",
		validate:   validator[AttendanceMark](),
	}
	AssessmentQuestions = Entity{
		Name:       "assessment_questions",
		Table:      "assessment_questions",
		Collection: "assessmentQuestions",
		validate:   validator[AssessmentQuestion](),
	}
	AssessmentAnswers = Entity{
		Name:       "assessment_answers",
		Table:      "assessment_answers",
		Collection: "assessmentAnswers",
		validate:   validator[AssessmentAnswer](),
	}
)

// Entities lists every synchronized entity in dependency order.
func Entities() []Entity {
	return []Entity{Children, Events, Attendance, AssessmentQuestions, AssessmentAnswers}
}

// EntityByName looks an entity up by its Name.
func EntityByName(name string) (Entity, bool) {
	for _, e := range Entities() {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

func validator[T Payload]() func(json.RawMessage) error {
	return func(data json.RawMessage) error {
		v, err := Unwrap[T](data)
		if err != nil {
			return err
		}
		return v.Check()
	}
}
