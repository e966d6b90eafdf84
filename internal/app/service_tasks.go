package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"taskboard/api/internal/attach"
	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

// CreateTask appends a task to the end of a list.
func (s *Service) CreateTask(ctx context.Context, session Session, listID, title, description string, dueDate *time.Time) (map[string]any, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, list.BoardID, session.UserID); err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errValidation("title is required", nil)
	}

	created, err := s.store.CreateTask(ctx, list.BoardID, store.Task{
		ID:          util.NewID("tsk"),
		ListID:      listID,
		Title:       title,
		Description: strings.TrimSpace(description),
		DueDate:     dueDate,
	})
	if err != nil {
		return nil, err
	}

	s.indexTask(created, list)
	s.recordActivity(ctx, list.BoardID, session.UserID, ActionTaskCreated, "task", created.ID, metaTask(ActionTaskCreated, created))
	payload := taskPayload(created)
	s.broadcast.EmitToBoard(list.BoardID, ActionTaskCreated, payload)
	return payload, nil
}

// UpdateTask edits a task's content fields. Position changes go
// through MoveTask.
func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, title, description *string, dueDate *time.Time, clearDueDate bool) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return nil, err
	}

	nextTitle := task.Title
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return nil, errValidation("title must not be empty", nil)
		}
		nextTitle = trimmed
	}
	nextDescription := task.Description
	if description != nil {
		nextDescription = strings.TrimSpace(*description)
	}
	nextDue := task.DueDate
	if clearDueDate {
		nextDue = nil
	} else if dueDate != nil {
		nextDue = dueDate
	}

	if err := s.store.UpdateTask(ctx, taskID, nextTitle, nextDescription, nextDue); err != nil {
		return nil, err
	}

	task.Title = nextTitle
	task.Description = nextDescription
	task.DueDate = nextDue
	s.indexTask(task.Task, store.List{ID: task.ListID, BoardID: task.BoardID, Title: task.ListTitle})
	s.recordActivity(ctx, task.BoardID, session.UserID, ActionTaskUpdated, "task", taskID, metaTask(ActionTaskUpdated, task.Task))
	payload := taskPayload(task.Task)
	s.broadcast.EmitToBoard(task.BoardID, ActionTaskUpdated, payload)
	return payload, nil
}

// MoveTask relocates a task within its list or to another list of the
// same board. Cross-board moves are rejected.
func (s *Service) MoveTask(ctx context.Context, session Session, taskID, destListID string, newPos int) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return nil, err
	}

	if destListID == "" {
		destListID = task.ListID
	}
	destTitle := task.ListTitle
	if destListID != task.ListID {
		dest, err := s.store.GetList(ctx, destListID)
		if err != nil {
			if isNotFound(err) {
				return nil, errValidation("destination list does not exist", nil)
			}
			return nil, err
		}
		if dest.BoardID != task.BoardID {
			return nil, errValidation("cannot move a task to another board", nil)
		}
		destTitle = dest.Title
	}
	if newPos < 0 {
		return nil, errValidation("position must not be negative", nil)
	}

	fromListID, fromPos := task.ListID, task.Position
	moved, err := s.store.MoveTask(ctx, task.BoardID, taskID, destListID, newPos)
	if err != nil {
		if errors.Is(err, store.ErrPositionOutOfRange) {
			return nil, errValidation("position is out of range", map[string]any{"position": newPos})
		}
		return nil, err
	}

	if moved.ListID != fromListID {
		if destList, listErr := s.store.GetList(ctx, moved.ListID); listErr == nil {
			s.indexTask(moved, destList)
		}
	}

	meta := ActivityMeta{Kind: ActionTaskMoved, Move: &MoveMeta{
		TaskID:        taskID,
		FromListID:    fromListID,
		FromListTitle: task.ListTitle,
		FromPosition:  fromPos,
		ToListID:      moved.ListID,
		ToListTitle:   destTitle,
		ToPosition:    moved.Position,
	}}
	s.recordActivity(ctx, task.BoardID, session.UserID, ActionTaskMoved, "task", taskID, meta)
	payload := taskPayload(moved)
	s.broadcast.EmitToBoard(task.BoardID, ActionTaskMoved, payload)
	return payload, nil
}

// DeleteTask removes a task; its former siblings close the gap.
func (s *Service) DeleteTask(ctx context.Context, session Session, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return err
	}

	if err := s.store.DeleteTask(ctx, task.BoardID, task.Task); err != nil {
		return err
	}

	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	if s.attach != nil {
		go func() {
			if err := s.attach.DeleteTaskObjects(context.Background(), taskID); err != nil {
				log.Printf("attach: cleanup for task %s: %v", taskID, err)
			}
		}()
	}

	s.recordActivity(ctx, task.BoardID, session.UserID, ActionTaskDeleted, "task", taskID, metaTask(ActionTaskDeleted, task.Task))
	s.broadcast.EmitToBoard(task.BoardID, ActionTaskDeleted, map[string]any{"id": taskID, "listId": task.ListID})
	return nil
}

// AssignTask assigns a board member to a task. Assigning someone who
// is not a member of the board is a validation error, not a silent
// membership grant.
func (s *Service) AssignTask(ctx context.Context, session Session, taskID, userID string) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return nil, err
	}

	assignee, err := s.store.GetMembership(ctx, task.BoardID, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, errValidation("assignee must be a member of the board", nil)
		}
		return nil, err
	}

	if err := s.store.AddAssignee(ctx, taskID, userID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errConflict("ALREADY_ASSIGNED", "User is already assigned to this task")
		}
		return nil, err
	}

	meta := ActivityMeta{Kind: ActionTaskAssigned, Member: &MemberMeta{UserID: userID, DisplayName: assignee.DisplayName}, Task: &TaskMeta{TaskID: taskID, ListID: task.ListID, Title: task.Title}}
	s.recordActivity(ctx, task.BoardID, session.UserID, ActionTaskAssigned, "task", taskID, meta)
	s.broadcast.EmitToBoard(task.BoardID, ActionTaskAssigned, map[string]any{
		"taskId":      taskID,
		"userId":      userID,
		"displayName": assignee.DisplayName,
	})

	if s.email != nil && s.email.IsConfigured() && userID != session.UserID {
		user, userErr := s.store.GetUserByID(ctx, userID)
		board, boardErr := s.store.GetBoard(ctx, task.BoardID)
		if userErr == nil && boardErr == nil {
			go func(to, name, taskTitle, boardTitle, by string) {
				if err := s.email.SendAssignmentEmail(to, name, taskTitle, boardTitle, by); err != nil {
					log.Printf("email: assignment to %s: %v", to, err)
				}
			}(user.Email, user.DisplayName, task.Title, board.Title, session.UserName)
		}
	}

	return map[string]any{"taskId": taskID, "userId": userID, "displayName": assignee.DisplayName}, nil
}

func (s *Service) UnassignTask(ctx context.Context, session Session, taskID, userID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return err
	}

	if err := s.store.RemoveAssignee(ctx, taskID, userID); err != nil {
		return err
	}

	meta := ActivityMeta{Kind: ActionTaskUnassigned, Member: &MemberMeta{UserID: userID}, Task: &TaskMeta{TaskID: taskID, ListID: task.ListID, Title: task.Title}}
	s.recordActivity(ctx, task.BoardID, session.UserID, ActionTaskUnassigned, "task", taskID, meta)
	s.broadcast.EmitToBoard(task.BoardID, ActionTaskUnassigned, map[string]any{"taskId": taskID, "userId": userID})
	return nil
}

// AddAttachment uploads a file for a task and records its metadata.
func (s *Service) AddAttachment(ctx context.Context, session Session, taskID, fileName, contentType string, size int64, body io.Reader) (map[string]any, error) {
	if s.attach == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return nil, err
	}

	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, errValidation("file name is required", nil)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment := store.Attachment{
		ID:          util.NewID("att"),
		TaskID:      taskID,
		FileName:    fileName,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  session.UserID,
	}
	attachment.ObjectKey = attach.ObjectKey(taskID, attachment.ID, fileName)

	if err := s.attach.Upload(ctx, attachment.ObjectKey, body, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		return nil, err
	}

	meta := ActivityMeta{Kind: ActionAttachmentAdded, Attachment: &AttachmentMeta{AttachmentID: attachment.ID, TaskID: taskID, FileName: fileName}}
	s.recordActivity(ctx, task.BoardID, session.UserID, ActionAttachmentAdded, "attachment", attachment.ID, meta)
	payload := attachmentPayload(attachment)
	s.broadcast.EmitToBoard(task.BoardID, ActionAttachmentAdded, payload)
	return payload, nil
}

func (s *Service) ListAttachments(ctx context.Context, session Session, taskID string) ([]map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return nil, err
	}

	attachments, err := s.store.AttachmentsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, attachmentPayload(a))
	}
	return items, nil
}

// AttachmentDownloadURL returns a short-lived presigned URL.
func (s *Service) AttachmentDownloadURL(ctx context.Context, session Session, attachmentID string) (string, error) {
	if s.attach == nil {
		return "", domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage not configured", nil)
	}

	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	task, err := s.store.GetTask(ctx, attachment.TaskID)
	if err != nil {
		return "", err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return "", err
	}

	return s.attach.DownloadURL(ctx, attachment.ObjectKey, attachment.FileName)
}

func (s *Service) DeleteAttachment(ctx context.Context, session Session, attachmentID string) error {
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, attachment.TaskID)
	if err != nil {
		return err
	}
	if _, err := s.requireMember(ctx, task.BoardID, session.UserID); err != nil {
		return err
	}

	if err := s.store.DeleteAttachment(ctx, attachmentID); err != nil {
		return err
	}
	if s.attach != nil {
		if err := s.attach.Delete(ctx, attachment.ObjectKey); err != nil {
			log.Printf("attach: delete object %s: %v", attachment.ObjectKey, err)
		}
	}

	meta := ActivityMeta{Kind: ActionAttachmentRemoved, Attachment: &AttachmentMeta{AttachmentID: attachmentID, TaskID: attachment.TaskID, FileName: attachment.FileName}}
	s.recordActivity(ctx, task.BoardID, session.UserID, ActionAttachmentRemoved, "attachment", attachmentID, meta)
	s.broadcast.EmitToBoard(task.BoardID, ActionAttachmentRemoved, map[string]any{"id": attachmentID, "taskId": attachment.TaskID})
	return nil
}

func (s *Service) indexTask(task store.Task, list store.List) {
	if s.search == nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		ListID:      task.ListID,
		ListTitle:   list.Title,
		BoardID:     list.BoardID,
	})
}
