package core

import (
	"strconv"
	"strings"

	"github.com/medic/medic-conf/pkg/models"
)

// idSeparator joins the parts of a task instance identifier.
const idSeparator = "~"

// Sequencer assigns identifiers to task instances and collects the
// emission stream of one evaluation call. It is not safe for concurrent
// use; each evaluation call owns its own Sequencer.
type Sequencer struct {
	emitted []models.Emission
	seen    map[string]struct{}
	counter int
}

// NewSequencer creates an empty Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{seen: make(map[string]struct{})}
}

// AssignID joins the definition key, fact ID and event key into an
// identifier. The call-scoped counter is only appended when the identifier
// was already assigned in this call.
func (s *Sequencer) AssignID(definition, factID, eventID string) string {
	base := strings.Join([]string{definition, factID, eventID}, idSeparator)
	id := base
	for {
		if _, dup := s.seen[id]; !dup {
			break
		}
		id = base + idSeparator + s.next()
	}
	s.seen[id] = struct{}{}
	return id
}

// Emit appends a task instance, assigning its identifier. defIndex and
// eventIndex locate the instance's definition and event; they stand in for
// a missing definition name or event ID so that identifiers do not depend
// on which other instances the call produced.
func (s *Sequencer) Emit(task models.TaskInstance, defIndex, eventIndex int) models.TaskInstance {
	task.ID = s.AssignID(
		positionalKey(task.Definition, "_t", defIndex),
		factIDOf(task),
		positionalKey(task.EventID, "_e", eventIndex),
	)
	s.emitted = append(s.emitted, task)
	return task
}

// Complete appends the completion marker and returns the full stream.
// The sequencer must not be used afterwards.
func (s *Sequencer) Complete() []models.Emission {
	s.emitted = append(s.emitted, models.CompletionMarker{})
	out := s.emitted
	s.emitted = nil
	return out
}

func (s *Sequencer) next() string {
	s.counter++
	return "_" + strconv.Itoa(s.counter)
}

func positionalKey(key, prefix string, index int) string {
	if key != "" {
		return key
	}
	return prefix + strconv.Itoa(index)
}

func factIDOf(task models.TaskInstance) string {
	if task.ScheduledTaskID != "" {
		return task.ScheduledTaskID
	}
	if task.Doc.ID != "" {
		return task.Doc.ID
	}
	return task.Contact.ID
}
