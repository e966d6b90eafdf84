package app

import (
	"encoding/json"

	"taskboard/api/internal/store"
)

func boardPayload(b store.Board) map[string]any {
	return map[string]any{
		"id":          b.ID,
		"title":       b.Title,
		"description": b.Description,
		"createdBy":   b.CreatedBy,
		"createdAt":   b.CreatedAt,
		"updatedAt":   b.UpdatedAt,
	}
}

func listPayload(l store.List) map[string]any {
	return map[string]any{
		"id":       l.ID,
		"boardId":  l.BoardID,
		"title":    l.Title,
		"position": l.Position,
	}
}

func taskPayload(t store.Task) map[string]any {
	payload := map[string]any{
		"id":          t.ID,
		"listId":      t.ListID,
		"title":       t.Title,
		"description": t.Description,
		"position":    t.Position,
	}
	if t.DueDate != nil {
		payload["dueDate"] = t.DueDate
	}
	return payload
}

func memberPayload(m store.BoardMember) map[string]any {
	return map[string]any{
		"userId":      m.UserID,
		"displayName": m.DisplayName,
		"email":       m.Email,
		"role":        m.Role,
		"addedAt":     m.AddedAt,
	}
}

func assigneePayload(a store.TaskAssignee) map[string]any {
	return map[string]any{
		"taskId":      a.TaskID,
		"userId":      a.UserID,
		"displayName": a.DisplayName,
		"assignedAt":  a.AssignedAt,
	}
}

func attachmentPayload(a store.Attachment) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"taskId":      a.TaskID,
		"fileName":    a.FileName,
		"contentType": a.ContentType,
		"size":        a.Size,
		"uploadedBy":  a.UploadedBy,
		"createdAt":   a.CreatedAt,
	}
}

func activityPayload(a store.Activity) map[string]any {
	metadata := json.RawMessage(a.Metadata)
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	return map[string]any{
		"id":         a.ID,
		"boardId":    a.BoardID,
		"userId":     a.UserID,
		"actorName":  a.ActorName,
		"action":     a.Action,
		"entityType": a.EntityType,
		"entityId":   a.EntityID,
		"metadata":   metadata,
		"createdAt":  a.CreatedAt,
	}
}
