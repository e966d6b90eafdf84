package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

// Activity actions double as realtime event names so feed entries and
// websocket frames describe a mutation identically.
const (
	ActionBoardUpdated      = "board:updated"
	ActionBoardDeleted      = "board:deleted"
	ActionMemberAdded       = "member:added"
	ActionMemberRemoved     = "member:removed"
	ActionListCreated       = "list:created"
	ActionListRenamed       = "list:renamed"
	ActionListMoved         = "list:moved"
	ActionListDeleted       = "list:deleted"
	ActionTaskCreated       = "task:created"
	ActionTaskUpdated       = "task:updated"
	ActionTaskMoved         = "task:moved"
	ActionTaskDeleted       = "task:deleted"
	ActionTaskAssigned      = "task:assigned"
	ActionTaskUnassigned    = "task:unassigned"
	ActionAttachmentAdded   = "attachment:added"
	ActionAttachmentRemoved = "attachment:removed"
)

// ActivityMeta is a tagged union: Kind names the variant and exactly
// one of the variant pointers is set. Unknown kinds deserialize with
// all variants nil, which readers must tolerate.
type ActivityMeta struct {
	Kind       string          `json:"kind"`
	List       *ListMeta       `json:"list,omitempty"`
	Task       *TaskMeta       `json:"task,omitempty"`
	Move       *MoveMeta       `json:"move,omitempty"`
	Member     *MemberMeta     `json:"member,omitempty"`
	Attachment *AttachmentMeta `json:"attachment,omitempty"`
}

type ListMeta struct {
	ListID   string `json:"listId"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type TaskMeta struct {
	TaskID string `json:"taskId"`
	ListID string `json:"listId"`
	Title  string `json:"title"`
}

type MoveMeta struct {
	TaskID        string `json:"taskId,omitempty"`
	ListID        string `json:"listId,omitempty"`
	FromListID    string `json:"fromListId,omitempty"`
	FromListTitle string `json:"fromListTitle,omitempty"`
	FromPosition  int    `json:"fromPosition"`
	ToListID      string `json:"toListId,omitempty"`
	ToListTitle   string `json:"toListTitle,omitempty"`
	ToPosition    int    `json:"toPosition"`
}

type MemberMeta struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
}

type AttachmentMeta struct {
	AttachmentID string `json:"attachmentId"`
	TaskID       string `json:"taskId"`
	FileName     string `json:"fileName"`
}

func metaList(kind string, l store.List) ActivityMeta {
	return ActivityMeta{Kind: kind, List: &ListMeta{ListID: l.ID, Title: l.Title, Position: l.Position}}
}

func metaTask(kind string, t store.Task) ActivityMeta {
	return ActivityMeta{Kind: kind, Task: &TaskMeta{TaskID: t.ID, ListID: t.ListID, Title: t.Title}}
}

// recordActivity appends a feed entry. Failures are logged, not
// returned: the mutation already committed and must not be reported as
// failed because its audit entry was lost.
func (s *Service) recordActivity(ctx context.Context, boardID, userID, action, entityType, entityID string, meta ActivityMeta) {
	raw, err := json.Marshal(meta)
	if err != nil {
		log.Printf("activity: marshal %s metadata: %v", action, err)
		raw = []byte(`{}`)
	}
	if err := s.store.InsertActivity(ctx, store.Activity{
		ID:         util.NewID("act"),
		BoardID:    boardID,
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   string(raw),
		CreatedAt:  time.Now(),
	}); err != nil {
		log.Printf("activity: insert %s for board %s: %v", action, boardID, err)
	}
}
