package steps

import (
	"time"

	"github.com/google/uuid"
)

// Notice is a user-visible message attached to a step.
// Blocking notices stop the step from advancing and are cleared by the next
// success on that step; non-blocking notices can be dismissed.
type Notice struct {
	ID        string    `json:"id"`
	Step      int       `json:"step"`
	Message   string    `json:"message"`
	Blocking  bool      `json:"blocking"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStatus is the lifecycle of a background cart write.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Task is a background cart write started by a non-blocking step.
type Task struct {
	ID        string     `json:"id"`
	Step      int        `json:"step"`
	VariantID string     `json:"variant_id"`
	Status    TaskStatus `json:"status"`
	Err       string     `json:"error,omitempty"`
}

func newNotice(step int, msg string, blocking bool, now time.Time) Notice {
	return Notice{
		ID:        uuid.NewString(),
		Step:      step,
		Message:   msg,
		Blocking:  blocking,
		CreatedAt: now,
	}
}

// addNotice appends a notice unless an identical one is still showing.
// Callers hold s.mu.
func (s *Sequencer) addNotice(step int, msg string, blocking bool) Notice {
	for _, n := range s.notices {
		if n.Step == step && n.Message == msg && n.Blocking == blocking {
			return n
		}
	}
	n := newNotice(step, msg, blocking, s.now())
	s.notices = append(s.notices, n)
	return n
}

// clearBlocking drops the blocking notices of a step. Callers hold s.mu.
func (s *Sequencer) clearBlocking(step int) {
	kept := s.notices[:0]
	for _, n := range s.notices {
		if n.Blocking && n.Step == step {
			continue
		}
		kept = append(kept, n)
	}
	s.notices = kept
}

// Notices returns the notices currently showing, oldest first.
func (s *Sequencer) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

// Dismiss removes a non-blocking notice. Blocking notices and unknown ids
// report false.
func (s *Sequencer) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notices {
		if n.ID != id {
			continue
		}
		if n.Blocking {
			return false
		}
		s.notices = append(s.notices[:i], s.notices[i+1:]...)
		return true
	}
	return false
}

// Tasks returns the background writes started in this session.
func (s *Sequencer) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Task)
	}
	return out
}
