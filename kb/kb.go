package kb

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/iot-trace-generator/core"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

var (
	ErrScenarioExists   = errors.New("scenario already exists")
	ErrScenarioNotFound = errors.New("scenario not found")
)

// EventType indicates what kind of change happened in the catalogue.
type EventType int

const (
	EventScenarioAdded EventType = iota
	EventScenarioReplaced
	EventRunRecorded
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	Scenario string
	Run      *RunRecord
}

// RunRecord is the outcome of one generator run.
type RunRecord struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Seed       uint64             `json:"seed"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Stats      core.StatsSnapshot `json:"stats"`
}

// KnowledgeBase is an in-memory, thread-safe catalogue of scenarios and
// the runs generated from them.
type KnowledgeBase struct {
	mu sync.RWMutex

	scenarios map[string]model.Scenario
	runs      []RunRecord

	subs   []subscription
	nextID uint64
}

type subscription struct {
	id uint64
	fn func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		scenarios: make(map[string]model.Scenario),
	}
}

// AddScenario validates and stores s. It returns ErrScenarioExists if the
// name is taken.
func (kb *KnowledgeBase) AddScenario(s model.Scenario) error {
	if err := core.ValidateScenario(s); err != nil {
		return err
	}

	kb.mu.Lock()
	if _, exists := kb.scenarios[s.Name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrScenarioExists, s.Name)
	}
	kb.scenarios[s.Name] = s
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventScenarioAdded, Scenario: s.Name})
	return nil
}

// PutScenario validates and stores s, replacing any scenario of the same name.
func (kb *KnowledgeBase) PutScenario(s model.Scenario) error {
	if err := core.ValidateScenario(s); err != nil {
		return err
	}

	kb.mu.Lock()
	ev := Event{Type: EventScenarioAdded, Scenario: s.Name}
	if _, exists := kb.scenarios[s.Name]; exists {
		ev.Type = EventScenarioReplaced
	}
	kb.scenarios[s.Name] = s
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, ev)
	return nil
}

// GetScenario returns the scenario with the given name.
func (kb *KnowledgeBase) GetScenario(name string) (model.Scenario, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	s, ok := kb.scenarios[name]
	if !ok {
		return model.Scenario{}, fmt.Errorf("%w: %q", ErrScenarioNotFound, name)
	}
	return s, nil
}

// ListScenarios returns a snapshot of all scenarios sorted by name.
func (kb *KnowledgeBase) ListScenarios() []model.Scenario {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Scenario, 0, len(kb.scenarios))
	for _, s := range kb.scenarios {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// RecordRun appends a finished run and notifies subscribers.
func (kb *KnowledgeBase) RecordRun(r RunRecord) {
	kb.mu.Lock()
	kb.runs = append(kb.runs, r)
	subs := kb.subscribers()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventRunRecorded, Scenario: r.Scenario, Run: &r})
}

// ListRuns returns the recorded runs of scenario, oldest first. An empty
// name lists every run.
func (kb *KnowledgeBase) ListRuns(scenario string) []RunRecord {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]RunRecord, 0, len(kb.runs))
	for _, r := range kb.runs {
		if scenario == "" || r.Scenario == scenario {
			res = append(res, r)
		}
	}
	return res
}

// Subscribe registers a callback for KB events. It returns an unsubscribe
// function; calling it more than once is a no-op.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.nextID++
	id := kb.nextID
	kb.subs = append(kb.subs, subscription{id: id, fn: fn})

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		kb.subs = slices.DeleteFunc(kb.subs, func(s subscription) bool { return s.id == id })
	}
}

// subscribers copies the callbacks; callers hold kb.mu.
func (kb *KnowledgeBase) subscribers() []func(Event) {
	fns := make([]func(Event), 0, len(kb.subs))
	for _, s := range kb.subs {
		fns = append(fns, s.fn)
	}
	return fns
}

// Subscribers are called outside the lock.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
