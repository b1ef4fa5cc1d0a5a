// Package store holds the live notifications shown by the daemon.
//
// The store is owned by the event loop goroutine and is not safe for
// concurrent use. Every mutating call marks it dirty; the loop polls
// TakeDirty to decide whether layout must be recomputed.
package store

import (
	"errors"
	"strings"
	"time"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/model"
)

var (
	// ErrNotFound is returned when an id is not live.
	ErrNotFound = errors.New("notification not found")
	// ErrUnknownAction is returned when an action key was not declared.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMalformed is returned for a notification with nothing to show.
	ErrMalformed = errors.New("malformed notification")
)

// Spec is an inbound notification request.
type Spec struct {
	ReplacesID uint32
	AppName    string
	Summary    string
	Body       string
	Icon       string
	Actions    []model.Action
	Links      []model.Link
	Hints      model.Hints
	Timeout    model.Timeout
}

// Policy controls ordering, grouping and action semantics.
type Policy struct {
	Stacking             string
	GroupBy              string
	ReplaceSameGroup     bool
	StackDuplicates      bool
	CloseOnDefaultAction bool
	CloseOnAction        bool
}

// PolicyFromConfig extracts the store policy from a config snapshot.
func PolicyFromConfig(cfg *config.DaemonConfig) Policy {
	return Policy{
		Stacking:             cfg.General.Stacking,
		GroupBy:              cfg.Behavior.GroupBy,
		ReplaceSameGroup:     cfg.Behavior.ReplaceSameGroup,
		StackDuplicates:      cfg.Behavior.StackDuplicates,
		CloseOnDefaultAction: cfg.Behavior.CloseOnDefaultAction,
		CloseOnAction:        cfg.Behavior.CloseOnAction,
	}
}

// Outcome describes what Upsert did with a request.
type Outcome int

const (
	// OutcomeInserted means a new entry was added.
	OutcomeInserted Outcome = iota
	// OutcomeReplaced means a live entry was updated in place by replaces_id.
	OutcomeReplaced
	// OutcomeMerged means the new entry took a group member's slot.
	OutcomeMerged
	// OutcomeStacked means the request was folded into an identical entry.
	OutcomeStacked
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeReplaced:
		return "replaced"
	case OutcomeMerged:
		return "merged"
	case OutcomeStacked:
		return "stacked"
	default:
		return "inserted"
	}
}

// Result is returned by Upsert.
type Result struct {
	// ID is the id reported back to the sender.
	ID      uint32
	Outcome Outcome
	// Target is the live entry whose timers must be (re)started: the new or
	// replaced entry, or the entry that absorbed a stacked duplicate.
	Target uint32
	// Displaced is the id of the group member removed by a merge. It is held
	// until FlushRetired.
	Displaced uint32
}

// ActionResult is returned by InvokeAction.
type ActionResult struct {
	ID  uint32
	Key string
	// Close reports whether the policy implies the notification closes.
	Close bool
}

// Store is an ordered collection of live notifications.
type Store struct {
	policy Policy
	now    func() time.Time

	order    []*model.Notification
	byID     map[uint32]*model.Notification
	retiring []model.ClosedEvent

	lastID uint32
	seq    uint64
	dirty  bool
}

// New creates an empty store. A nil clock uses time.Now.
func New(policy Policy, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		policy: policy,
		now:    now,
		byID:   make(map[uint32]*model.Notification),
	}
}

// SetPolicy replaces the policy. Existing entries keep their positions.
func (s *Store) SetPolicy(p Policy) {
	s.policy = p
	s.dirty = true
}

// Policy returns the active policy.
func (s *Store) Policy() Policy {
	return s.policy
}

// Upsert inserts or updates a notification. On ErrMalformed the returned
// Result still carries a freshly allocated id so the caller can report it
// closed.
func (s *Store) Upsert(spec Spec) (Result, error) {
	spec = sanitize(spec)

	if spec.ReplacesID != 0 {
		if n, ok := s.byID[spec.ReplacesID]; ok {
			if malformed(spec) {
				return Result{ID: n.ID, Outcome: OutcomeReplaced, Target: n.ID}, ErrMalformed
			}
			s.replaceContent(n, spec)
			s.dirty = true
			return Result{ID: n.ID, Outcome: OutcomeReplaced, Target: n.ID}, nil
		}
	}

	id := s.allocateID()
	if malformed(spec) {
		return Result{ID: id}, ErrMalformed
	}

	if s.policy.StackDuplicates {
		if dup := s.findDuplicate(spec); dup != nil {
			dup.StackCount++
			dup.UpdatedAt = s.now()
			s.dirty = true
			return Result{ID: id, Outcome: OutcomeStacked, Target: dup.ID}, nil
		}
	}

	n := s.newEntry(id, spec)

	if s.policy.ReplaceSameGroup {
		if idx := s.findGroupMember(spec); idx >= 0 {
			old := s.order[idx]
			n.Seq = old.Seq
			s.order[idx] = n
			delete(s.byID, old.ID)
			s.byID[n.ID] = n
			old.Reason = model.ReasonReplaced
			s.retiring = append(s.retiring, model.ClosedEvent{
				ID:           old.ID,
				Reason:       model.ReasonReplaced,
				Notification: old.Clone(),
			})
			s.dirty = true
			return Result{ID: id, Outcome: OutcomeMerged, Target: id, Displaced: old.ID}, nil
		}
	}

	if s.policy.Stacking == config.StackingOldestFirst {
		s.order = append(s.order, n)
	} else {
		s.order = append([]*model.Notification{n}, s.order...)
	}
	s.byID[id] = n
	s.dirty = true
	return Result{ID: id, Outcome: OutcomeInserted, Target: id}, nil
}

// Remove deletes a live notification. Removing an absent id is a no-op.
func (s *Store) Remove(id uint32, reason model.DismissReason) (model.ClosedEvent, bool) {
	n, ok := s.byID[id]
	if !ok {
		return model.ClosedEvent{}, false
	}
	delete(s.byID, id)
	for i, e := range s.order {
		if e == n {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	n.Reason = reason
	s.dirty = true
	return model.ClosedEvent{ID: id, Reason: reason, Notification: n.Clone()}, true
}

// RemoveAll deletes every live notification in store order.
func (s *Store) RemoveAll(reason model.DismissReason) []model.ClosedEvent {
	if len(s.order) == 0 {
		return nil
	}
	events := make([]model.ClosedEvent, 0, len(s.order))
	for _, n := range s.order {
		n.Reason = reason
		events = append(events, model.ClosedEvent{ID: n.ID, Reason: reason, Notification: n.Clone()})
	}
	s.order = s.order[:0]
	clear(s.byID)
	s.dirty = true
	return events
}

// InvokeAction validates an action and reports whether it closes the
// notification. It never removes anything itself.
func (s *Store) InvokeAction(id uint32, key string) (ActionResult, error) {
	n, ok := s.byID[id]
	if !ok {
		return ActionResult{}, ErrNotFound
	}
	if !n.HasAction(key) {
		return ActionResult{}, ErrUnknownAction
	}

	res := ActionResult{ID: id, Key: key}
	if n.Hints.Resident {
		return res, nil
	}
	if key == model.DefaultActionKey {
		res.Close = s.policy.CloseOnDefaultAction
	} else {
		res.Close = s.policy.CloseOnAction
	}
	return res, nil
}

// FlushRetired returns entries displaced by group merges since the last
// call. The loop calls it once the replacing frame has been presented.
func (s *Store) FlushRetired() []model.ClosedEvent {
	if len(s.retiring) == 0 {
		return nil
	}
	out := s.retiring
	s.retiring = nil
	return out
}

// HasRetired reports whether displaced entries are waiting for a flush.
func (s *Store) HasRetired() bool {
	return len(s.retiring) > 0
}

// Mutate applies fn to a live entry and marks the store dirty.
func (s *Store) Mutate(id uint32, fn func(n *model.Notification)) bool {
	n, ok := s.byID[id]
	if !ok {
		return false
	}
	fn(n)
	s.dirty = true
	return true
}

// SetBounds records the laid-out rectangle of an entry. Bounds are an output
// of layout, so this does not mark the store dirty.
func (s *Store) SetBounds(id uint32, r model.Rect) {
	if n, ok := s.byID[id]; ok {
		n.Bounds = r
	}
}

// SetRemaining records the expiry left while the entry's timer is paused.
// It does not mark the store dirty.
func (s *Store) SetRemaining(id uint32, d time.Duration) {
	if n, ok := s.byID[id]; ok {
		n.Remaining = d
	}
}

// SetPhase moves an entry to a new phase. It reports whether the phase
// changed.
func (s *Store) SetPhase(id uint32, p model.Phase) bool {
	n, ok := s.byID[id]
	if !ok || n.Phase == p {
		return false
	}
	n.Phase = p
	s.dirty = true
	return true
}

// MarkDirty forces the next TakeDirty to report true.
func (s *Store) MarkDirty() {
	s.dirty = true
}

// TakeDirty reports whether the store changed since the last call and
// clears the flag.
func (s *Store) TakeDirty() bool {
	d := s.dirty
	s.dirty = false
	return d
}

// Get returns a copy of a live entry.
func (s *Store) Get(id uint32) (model.Notification, bool) {
	n, ok := s.byID[id]
	if !ok {
		return model.Notification{}, false
	}
	return n.Clone(), true
}

// Has reports whether id is live.
func (s *Store) Has(id uint32) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	return len(s.order)
}

// IDs returns the live ids in store order.
func (s *Store) IDs() []uint32 {
	ids := make([]uint32, len(s.order))
	for i, n := range s.order {
		ids[i] = n.ID
	}
	return ids
}

// Snapshot returns copies of all live entries in store order.
func (s *Store) Snapshot() []model.Notification {
	out := make([]model.Notification, len(s.order))
	for i, n := range s.order {
		out[i] = n.Clone()
	}
	return out
}

// allocateID returns the next id, skipping 0 and ids still live after the
// counter wraps.
func (s *Store) allocateID() uint32 {
	for {
		s.lastID++
		if s.lastID == 0 {
			continue
		}
		if _, live := s.byID[s.lastID]; live {
			continue
		}
		return s.lastID
	}
}

func (s *Store) newEntry(id uint32, spec Spec) *model.Notification {
	now := s.now()
	s.seq++
	n := &model.Notification{
		ID:         id,
		CreatedAt:  now,
		Seq:        s.seq,
		Phase:      model.PhasePending,
		StackCount: 1,
	}
	s.setContent(n, spec)
	n.UpdatedAt = now
	if n.IconSource() != "" || n.Hints.ImageData != nil {
		n.IconGen = 1
	}
	return n
}

func (s *Store) replaceContent(n *model.Notification, spec Spec) {
	prevSource := n.IconSource()
	prevData := n.Hints.ImageData
	s.setContent(n, spec)
	n.UpdatedAt = s.now()
	n.Reason = model.ReasonNone
	n.Remaining = 0
	if n.IconSource() != prevSource || n.Hints.ImageData != prevData {
		n.IconGen++
		n.IconImage = nil
	}
}

func (s *Store) setContent(n *model.Notification, spec Spec) {
	n.AppName = spec.AppName
	n.Summary = spec.Summary
	n.Body = spec.Body
	n.Icon = spec.Icon
	n.Actions = append([]model.Action(nil), spec.Actions...)
	n.Links = append([]model.Link(nil), spec.Links...)
	n.Hints = spec.Hints
	n.Timeout = spec.Timeout
	n.Urgency = spec.Hints.Urgency
}

func (s *Store) findDuplicate(spec Spec) *model.Notification {
	var best *model.Notification
	for _, n := range s.order {
		if n.AppName == spec.AppName && n.Summary == spec.Summary && n.Body == spec.Body {
			if best == nil || n.Seq > best.Seq {
				best = n
			}
		}
	}
	return best
}

// findGroupMember returns the store index of the most recently inserted
// entry sharing the spec's group key, or -1.
func (s *Store) findGroupMember(spec Spec) int {
	key := groupKey(s.policy.GroupBy, spec.AppName, spec.Hints.StackTag)
	if key == "" {
		return -1
	}
	best := -1
	for i, n := range s.order {
		if groupKey(s.policy.GroupBy, n.AppName, n.Hints.StackTag) != key {
			continue
		}
		if best < 0 || n.Seq > s.order[best].Seq {
			best = i
		}
	}
	return best
}

func groupKey(groupBy, app, tag string) string {
	switch groupBy {
	case config.GroupByApp:
		return app
	case config.GroupByStackTag:
		return tag
	default:
		return ""
	}
}

func malformed(spec Spec) bool {
	return spec.Summary == "" && spec.Body == "" && spec.Icon == "" &&
		spec.Hints.ImagePath == "" && spec.Hints.ImageData == nil
}

func sanitize(spec Spec) Spec {
	spec.AppName = strings.ToValidUTF8(spec.AppName, "�")
	spec.Summary = strings.ToValidUTF8(strings.TrimSpace(spec.Summary), "�")
	spec.Body = strings.ToValidUTF8(strings.TrimSpace(spec.Body), "�")
	spec.Hints.Urgency = model.ClampUrgency(int(spec.Hints.Urgency))
	switch {
	case spec.Hints.Progress > 100:
		spec.Hints.Progress = 100
	case spec.Hints.Progress < 0:
		spec.Hints.Progress = -1
	}
	return spec
}
