package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Board struct {
	ID          string
	Title       string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BoardWithRole is a board row joined with the requesting user's
// membership role, as returned by ListBoardsForUser.
type BoardWithRole struct {
	Board
	Role string
}

type BoardMember struct {
	BoardID     string
	UserID      string
	Role        string
	DisplayName string
	Email       string
	AddedAt     time.Time
}

type List struct {
	ID        string
	BoardID   string
	Title     string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	ID          string
	ListID      string
	Title       string
	Description string
	Position    int
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TaskAssignee struct {
	TaskID      string
	UserID      string
	DisplayName string
	AssignedAt  time.Time
}

// Activity is an append-only audit row. Metadata is a JSON blob whose
// shape depends on Action; the app layer owns the per-action encoding.
type Activity struct {
	ID         string
	BoardID    string
	UserID     string
	ActorName  string
	Action     string
	EntityType string
	EntityID   string
	Metadata   string
	CreatedAt  time.Time
}

type Attachment struct {
	ID          string
	TaskID      string
	FileName    string
	ContentType string
	Size        int64
	ObjectKey   string
	UploadedBy  string
	CreatedAt   time.Time
}

// TaskWithBoard annotates a task with its list and board, resolved
// upward through the owning list. The move and permission paths need
// the board id before they can check membership.
type TaskWithBoard struct {
	Task
	BoardID   string
	ListTitle string
}
