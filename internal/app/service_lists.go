package app

import (
	"context"
	"errors"
	"strings"

	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

// CreateList appends a list to the end of the board.
func (s *Service) CreateList(ctx context.Context, session Session, boardID, title string) (map[string]any, error) {
	if _, err := s.requireMember(ctx, boardID, session.UserID); err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errValidation("title is required", nil)
	}

	created, err := s.store.CreateList(ctx, store.List{
		ID:      util.NewID("lst"),
		BoardID: boardID,
		Title:   title,
	})
	if err != nil {
		return nil, err
	}

	s.recordActivity(ctx, boardID, session.UserID, ActionListCreated, "list", created.ID, metaList(ActionListCreated, created))
	payload := listPayload(created)
	s.broadcast.EmitToBoard(boardID, ActionListCreated, payload)
	return payload, nil
}

// UpdateList renames and/or moves a list. The two changes come from
// the same PATCH surface; either field may be absent.
func (s *Service) UpdateList(ctx context.Context, session Session, listID string, title *string, position *int) (map[string]any, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, list.BoardID, session.UserID); err != nil {
		return nil, err
	}

	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return nil, errValidation("title must not be empty", nil)
		}
		if err := s.store.RenameList(ctx, listID, trimmed); err != nil {
			return nil, err
		}
		list.Title = trimmed
		s.recordActivity(ctx, list.BoardID, session.UserID, ActionListRenamed, "list", listID, metaList(ActionListRenamed, list))
		s.broadcast.EmitToBoard(list.BoardID, ActionListRenamed, listPayload(list))
	}

	if position != nil && *position != list.Position {
		fromPos := list.Position
		moved, err := s.store.MoveList(ctx, list.BoardID, listID, *position)
		if err != nil {
			if errors.Is(err, store.ErrPositionOutOfRange) {
				return nil, errValidation("position is out of range", map[string]any{"position": *position})
			}
			return nil, err
		}
		list = moved
		meta := ActivityMeta{Kind: ActionListMoved, Move: &MoveMeta{ListID: listID, FromPosition: fromPos, ToPosition: moved.Position}}
		s.recordActivity(ctx, list.BoardID, session.UserID, ActionListMoved, "list", listID, meta)
		s.broadcast.EmitToBoard(list.BoardID, ActionListMoved, listPayload(list))
	}

	return listPayload(list), nil
}

// DeleteList removes a list and its tasks; remaining lists close the
// gap.
func (s *Service) DeleteList(ctx context.Context, session Session, listID string) error {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if _, err := s.requireMember(ctx, list.BoardID, session.UserID); err != nil {
		return err
	}

	if err := s.store.DeleteList(ctx, list); err != nil {
		return err
	}

	s.recordActivity(ctx, list.BoardID, session.UserID, ActionListDeleted, "list", listID, metaList(ActionListDeleted, list))
	s.broadcast.EmitToBoard(list.BoardID, ActionListDeleted, map[string]any{"id": listID, "boardId": list.BoardID})
	return nil
}
