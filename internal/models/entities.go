package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type EntityKind string

const (
	KindEvent            EntityKind = "event"
	KindTask             EntityKind = "task"
	KindMovement         EntityKind = "movement"
	KindJudicialMovement EntityKind = "judicial_movement"
	KindFolder           EntityKind = "folder"
)

var collectionNames = map[EntityKind]string{
	KindEvent:            "events",
	KindTask:             "tasks",
	KindMovement:         "movements",
	KindJudicialMovement: "judicialmovements",
	KindFolder:           "folders",
}

// Collection returns the document collection holding entities of this kind.
func (k EntityKind) Collection() string {
	return collectionNames[k]
}

// DateField returns the document field carrying the kind's trigger date.
func (k EntityKind) DateField() string {
	switch k {
	case KindEvent:
		return "start"
	case KindTask:
		return "dueDate"
	case KindMovement:
		return "dateExpiration"
	case KindJudicialMovement:
		return "notifyAt"
	case KindFolder:
		return "lastActivityDate"
	}
	return ""
}

// Notifiable is implemented by every entity that carries a notification history.
type Notifiable interface {
	EntityID() bson.ObjectID
	OwnerID() bson.ObjectID
	Kind() EntityKind
	DisplayName() string
	// TriggerDate returns the date the kind is evaluated against, or false
	// when the document is missing it.
	TriggerDate() (time.Time, bool)
	State() NotificationState
}

type Event struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      bson.ObjectID `bson:"userId" json:"userId"`
	Title       string        `bson:"title" json:"title"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Location    string        `bson:"location,omitempty" json:"location,omitempty"`
	Start       time.Time     `bson:"start" json:"start"`
	End         time.Time     `bson:"end,omitempty" json:"end,omitempty"`
	AllDay      bool          `bson:"allDay" json:"allDay"`

	NotificationState `bson:",inline"`
}

func (e Event) EntityID() bson.ObjectID { return e.ID }
func (e Event) OwnerID() bson.ObjectID  { return e.UserID }
func (e Event) Kind() EntityKind        { return KindEvent }
func (e Event) DisplayName() string     { return e.Title }
func (e Event) State() NotificationState {
	return e.NotificationState
}
func (e Event) TriggerDate() (time.Time, bool) {
	return e.Start, !e.Start.IsZero()
}
func (e Event) WithState(s NotificationState) Event {
	e.NotificationState = s
	return e
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

type Task struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      bson.ObjectID `bson:"userId" json:"userId"`
	FolderID    bson.ObjectID `bson:"folderId,omitempty" json:"folderId,omitempty"`
	Name        string        `bson:"name" json:"name"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Priority    string        `bson:"priority,omitempty" json:"priority,omitempty"`
	Status      TaskStatus    `bson:"status" json:"status"`
	DueDate     time.Time     `bson:"dueDate,omitempty" json:"dueDate,omitempty"`

	NotificationState `bson:",inline"`
}

func (t Task) EntityID() bson.ObjectID { return t.ID }
func (t Task) OwnerID() bson.ObjectID  { return t.UserID }
func (t Task) Kind() EntityKind        { return KindTask }
func (t Task) DisplayName() string     { return t.Name }
func (t Task) State() NotificationState {
	return t.NotificationState
}
func (t Task) TriggerDate() (time.Time, bool) {
	return t.DueDate, !t.DueDate.IsZero()
}
func (t Task) WithState(s NotificationState) Task {
	t.NotificationState = s
	return t
}

// Movement is a financial or procedural movement with an expiration date.
type Movement struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         bson.ObjectID `bson:"userId" json:"userId"`
	FolderID       bson.ObjectID `bson:"folderId,omitempty" json:"folderId,omitempty"`
	Description    string        `bson:"description" json:"description"`
	MovementType   string        `bson:"movementType,omitempty" json:"movementType,omitempty"`
	Amount         float64       `bson:"amount,omitempty" json:"amount,omitempty"`
	DateExpiration time.Time     `bson:"dateExpiration,omitempty" json:"dateExpiration,omitempty"`

	NotificationState `bson:",inline"`
}

func (m Movement) EntityID() bson.ObjectID { return m.ID }
func (m Movement) OwnerID() bson.ObjectID  { return m.UserID }
func (m Movement) Kind() EntityKind        { return KindMovement }
func (m Movement) DisplayName() string     { return m.Description }
func (m Movement) State() NotificationState {
	return m.NotificationState
}
func (m Movement) TriggerDate() (time.Time, bool) {
	return m.DateExpiration, !m.DateExpiration.IsZero()
}
func (m Movement) WithState(s NotificationState) Movement {
	m.NotificationState = s
	return m
}

type JudicialStatus string

const (
	JudicialStatusPending  JudicialStatus = "pending"
	JudicialStatusNotified JudicialStatus = "notified"
)

// JudicialMovement is a case movement produced by the upstream ingestion
// pipeline and waiting to be surfaced to its owner.
type JudicialMovement struct {
	ID           bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       bson.ObjectID  `bson:"userId" json:"userId"`
	FolderID     bson.ObjectID  `bson:"folderId,omitempty" json:"folderId,omitempty"`
	CaseNumber   string         `bson:"caseNumber" json:"caseNumber"`
	Court        string         `bson:"court,omitempty" json:"court,omitempty"`
	MovementType string         `bson:"movementType,omitempty" json:"movementType,omitempty"`
	Detail       string         `bson:"detail,omitempty" json:"detail,omitempty"`
	Link         string         `bson:"link,omitempty" json:"link,omitempty"`
	Date         time.Time      `bson:"date" json:"date"`
	NotifyAt     time.Time      `bson:"notifyAt" json:"notifyAt"`
	Status       JudicialStatus `bson:"status" json:"status"`
	// SourceKey identifies the ingested movement so replays of the same
	// event resolve to one document.
	SourceKey    string         `bson:"sourceKey,omitempty" json:"sourceKey,omitempty"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`

	NotificationState `bson:",inline"`
}

func (j JudicialMovement) EntityID() bson.ObjectID { return j.ID }
func (j JudicialMovement) OwnerID() bson.ObjectID  { return j.UserID }
func (j JudicialMovement) Kind() EntityKind        { return KindJudicialMovement }
func (j JudicialMovement) DisplayName() string {
	if j.MovementType == "" {
		return j.CaseNumber
	}
	return j.CaseNumber + " - " + j.MovementType
}
func (j JudicialMovement) State() NotificationState {
	return j.NotificationState
}
func (j JudicialMovement) TriggerDate() (time.Time, bool) {
	if !j.NotifyAt.IsZero() {
		return j.NotifyAt, true
	}
	return j.Date, !j.Date.IsZero()
}
func (j JudicialMovement) WithState(s NotificationState) JudicialMovement {
	j.NotificationState = s
	return j
}

type FolderStatus string

const (
	FolderStatusActive   FolderStatus = "active"
	FolderStatusArchived FolderStatus = "archived"
)

type Folder struct {
	ID               bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           bson.ObjectID `bson:"userId" json:"userId"`
	FolderName       string        `bson:"folderName" json:"folderName"`
	CaseNumber       string        `bson:"caseNumber,omitempty" json:"caseNumber,omitempty"`
	Status           FolderStatus  `bson:"status" json:"status"`
	LastActivityDate time.Time     `bson:"lastActivityDate,omitempty" json:"lastActivityDate,omitempty"`

	NotificationState `bson:",inline"`
}

func (f Folder) EntityID() bson.ObjectID { return f.ID }
func (f Folder) OwnerID() bson.ObjectID  { return f.UserID }
func (f Folder) Kind() EntityKind        { return KindFolder }
func (f Folder) DisplayName() string     { return f.FolderName }
func (f Folder) State() NotificationState {
	return f.NotificationState
}

// TriggerDate for a folder is its most recent activity; inactivity deadlines
// are derived from it per threshold.
func (f Folder) TriggerDate() (time.Time, bool) {
	return f.LastActivityDate, !f.LastActivityDate.IsZero()
}
func (f Folder) WithState(s NotificationState) Folder {
	f.NotificationState = s
	return f
}
