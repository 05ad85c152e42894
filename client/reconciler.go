// Package client keeps the local view of conversations in step with the
// server: optimistic sends, echoes, live edits and deletes.
package client

import (
	"strings"
	"sync"
	"time"

	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/domain/event"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const tempPrefix = "temp-"

type State int

const (
	Pending State = iota
	Confirmed
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "confirmed"
}

// Entry is one line of a conversation. A Pending entry only has a TempID
// and the content typed locally; a Confirmed entry carries the server record.
type Entry struct {
	State   State
	TempID  string
	Message domain.Message
}

// Key is the identity used for deduplication.
func (e Entry) Key() string {
	if e.State == Pending {
		return e.TempID
	}
	return e.Message.ID.String()
}

// DisplayText is what a client renders for the entry.
func (e Entry) DisplayText() string {
	switch {
	case e.Message.IsDeleted:
		return domain.DeletedPlaceholder
	case e.Message.Text == "" && e.Message.File != nil:
		return *e.Message.File
	default:
		return e.Message.Text
	}
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// Reconciler holds every entry received or sent since the last Reset, for
// all peers, in arrival order.
type Reconciler struct {
	mu      sync.Mutex
	self    domain.Identity
	entries []Entry
	online  []domain.Identity
	// rollback keeps the last confirmed version of messages changed
	// optimistically, until the server confirms or rejects the change.
	rollback map[uuid.UUID]domain.Message
	clock    func() time.Time
	window   time.Duration
}

func NewReconciler(self domain.Identity) *Reconciler {
	return &Reconciler{
		self:     self,
		rollback: make(map[uuid.UUID]domain.Message),
		clock:    time.Now,
		window:   domain.MutabilityWindow,
	}
}

// AddPending appends the optimistic version of a send and returns its
// temporary id.
func (r *Reconciler) AddPending(cmd chat.SendMessageCommand) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	tempID := tempPrefix + uuid.NewString()
	var file *string
	if cmd.File != nil && cmd.File.Data != "" {
		file = lo.ToPtr(cmd.File.Name)
	}
	now := r.clock().UTC()
	r.entries = append(r.entries, Entry{
		State:  Pending,
		TempID: tempID,
		Message: domain.Message{
			Sender:    r.self.UserID,
			Recipient: cmd.Recipient,
			Text:      cmd.Text,
			File:      file,
			CreatedAt: now,
			UpdatedAt: now,
		},
	})
	return tempID
}

// Receive merges a server echo or an incoming message. The confirmed record
// takes the place of the pending entry it answers, so the list never shows
// both and holds each server id once.
func (r *Reconciler) Receive(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !m.Involves(r.self.UserID) {
		return
	}
	confirmed := Entry{State: Confirmed, Message: m}

	// A replayed echo or a history page only refreshes the confirmed
	// record; pending entries wait for their own echo.
	if existing := r.indexOf(m.ID); existing >= 0 {
		r.entries[existing] = confirmed
		return
	}
	if pending := r.pendingFor(m); pending >= 0 {
		r.entries[pending] = confirmed
	} else {
		r.entries = append(r.entries, confirmed)
	}
	r.entries = lo.UniqBy(r.entries, Entry.Key)
}

// pendingFor finds the oldest pending entry the echo answers. Sender and
// recipient must match; an entry with the same text is preferred.
func (r *Reconciler) pendingFor(m domain.Message) int {
	first := -1
	for i, e := range r.entries {
		if e.State != Pending || e.Message.Sender != m.Sender || e.Message.Recipient != m.Recipient {
			continue
		}
		if e.Message.Text == m.Text {
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

func (r *Reconciler) indexOf(id uuid.UUID) int {
	for i, e := range r.entries {
		if e.State == Confirmed && e.Message.ID == id {
			return i
		}
	}
	return -1
}

// EditLocally applies an edit before the server confirms it.
func (r *Reconciler) EditLocally(id uuid.UUID, text string) bool {
	return r.changeLocally(id, func(m *domain.Message) { m.Edit(text, r.clock()) })
}

// DeleteLocally tombstones a message before the server confirms it.
func (r *Reconciler) DeleteLocally(id uuid.UUID) bool {
	return r.changeLocally(id, func(m *domain.Message) { m.Tombstone(r.clock()) })
}

func (r *Reconciler) changeLocally(id uuid.UUID, change func(m *domain.Message)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return false
	}
	if _, kept := r.rollback[id]; !kept {
		r.rollback[id] = r.entries[i].Message
	}
	change(&r.entries[i].Message)
	return true
}

// ApplyUpdate replaces text, edited flag and timestamp in place.
func (r *Reconciler) ApplyUpdate(evt event.MessageUpdated) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rollback, evt.ID)
	if i := r.indexOf(evt.ID); i >= 0 {
		m := &r.entries[i].Message
		m.Text = evt.Text
		m.IsEdited = evt.IsEdited
		m.UpdatedAt = evt.UpdatedAt
	}
}

// ApplyDelete turns the entry into a tombstone; it keeps its position.
func (r *Reconciler) ApplyDelete(evt event.MessageDeleted) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rollback, evt.ID)
	if i := r.indexOf(evt.ID); i >= 0 {
		m := &r.entries[i].Message
		m.Text = ""
		m.File = nil
		m.IsDeleted = true
	}
}

// Reject rolls back the optimistic change an error event refers to: the
// newest pending send to that recipient, or the local edit/delete of that
// message.
func (r *Reconciler) Reject(evt event.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch evt.Action {
	case event.SendMessage:
		for i := len(r.entries) - 1; i >= 0; i-- {
			e := r.entries[i]
			if e.State == Pending && e.Message.Sender == r.self.UserID &&
				(evt.Recipient == "" || e.Message.Recipient == evt.Recipient) {
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				return
			}
		}
	case event.UpdateMessage, event.DeleteMessage:
		id, err := uuid.Parse(evt.MessageID)
		if err != nil {
			return
		}
		previous, ok := r.rollback[id]
		if !ok {
			return
		}
		delete(r.rollback, id)
		if i := r.indexOf(id); i >= 0 {
			r.entries[i].Message = previous
		}
	}
}

// Apply routes a server event to the matching merge rule.
func (r *Reconciler) Apply(evt event.ServerEvent) {
	switch e := evt.(type) {
	case event.OnlineUsers:
		r.mu.Lock()
		r.online = append([]domain.Identity(nil), e...)
		r.mu.Unlock()
	case event.ReceiveMessage:
		r.Receive(e.Message)
	case event.MessageUpdated:
		r.ApplyUpdate(e)
	case event.MessageDeleted:
		r.ApplyDelete(e)
	case event.Error:
		r.Reject(e)
	}
}

// Load merges a history page, e.g. after opening a conversation.
func (r *Reconciler) Load(history []domain.Message) {
	for _, m := range history {
		r.Receive(m)
	}
}

// Reset forgets every entry, for instance after logging out.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.online = nil
	r.rollback = make(map[uuid.UUID]domain.Message)
}

// Conversation returns the entries exchanged between self and peer, in
// either direction.
func (r *Reconciler) Conversation(peer string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.entries, func(e Entry, _ int) bool {
		return e.Message.Involves(r.self.UserID) && e.Message.Involves(peer) &&
			(peer != r.self.UserID || e.Message.Sender == e.Message.Recipient)
	})
}

func (r *Reconciler) Online() []domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Identity(nil), r.online...)
}

// CanEditOrDelete tells whether the edit and delete actions should be
// offered for e. It shares the server's rule so both sides agree.
func (r *Reconciler) CanEditOrDelete(e Entry) bool {
	return e.State == Confirmed && domain.CanEditOrDelete(e.Message, r.self.UserID, r.clock(), r.window)
}
