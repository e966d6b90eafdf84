package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

func (s *Service) ListBoards(ctx context.Context, session Session) ([]map[string]any, error) {
	boards, err := s.store.ListBoardsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(boards))
	for _, b := range boards {
		item := boardPayload(b.Board)
		item["role"] = b.Role
		items = append(items, item)
	}
	return items, nil
}

// CreateBoard creates a board with the caller as its admin.
func (s *Service) CreateBoard(ctx context.Context, session Session, title, description string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errValidation("title is required", nil)
	}

	board := store.Board{
		ID:          util.NewID("brd"),
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedBy:   session.UserID,
	}
	if err := s.store.InsertBoard(ctx, board); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexBoard(search.BoardRecord{ID: board.ID, Title: board.Title, Description: board.Description})
	}

	payload := boardPayload(board)
	payload["role"] = "admin"
	return payload, nil
}

// GetBoardDetail returns the full snapshot clients reconcile against:
// the board, its lists and tasks in position order, members, and
// assignees.
func (s *Service) GetBoardDetail(ctx context.Context, session Session, boardID string) (map[string]any, error) {
	member, err := s.requireMember(ctx, boardID, session.UserID)
	if err != nil {
		return nil, err
	}

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	lists, err := s.store.ListsForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.TasksForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, boardID)
	if err != nil {
		return nil, err
	}
	assignees, err := s.store.AssigneesForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	assigneesByTask := make(map[string][]map[string]any)
	for _, a := range assignees {
		assigneesByTask[a.TaskID] = append(assigneesByTask[a.TaskID], assigneePayload(a))
	}

	tasksByList := make(map[string][]map[string]any)
	for _, t := range tasks {
		item := taskPayload(t)
		if av := assigneesByTask[t.ID]; av != nil {
			item["assignees"] = av
		} else {
			item["assignees"] = []map[string]any{}
		}
		tasksByList[t.ListID] = append(tasksByList[t.ListID], item)
	}

	listItems := make([]map[string]any, 0, len(lists))
	for _, l := range lists {
		item := listPayload(l)
		if tv := tasksByList[l.ID]; tv != nil {
			item["tasks"] = tv
		} else {
			item["tasks"] = []map[string]any{}
		}
		listItems = append(listItems, item)
	}

	memberItems := make([]map[string]any, 0, len(members))
	for _, m := range members {
		memberItems = append(memberItems, memberPayload(m))
	}

	payload := boardPayload(board)
	payload["role"] = member.Role
	payload["lists"] = listItems
	payload["members"] = memberItems
	return payload, nil
}

func (s *Service) UpdateBoard(ctx context.Context, session Session, boardID, title, description string) (map[string]any, error) {
	if _, err := s.requireAdmin(ctx, boardID, session.UserID); err != nil {
		return nil, err
	}

	current, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = current.Title
	}
	if err := s.store.UpdateBoard(ctx, boardID, title, strings.TrimSpace(description)); err != nil {
		return nil, err
	}

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexBoard(search.BoardRecord{ID: board.ID, Title: board.Title, Description: board.Description})
	}

	payload := boardPayload(board)
	s.recordActivity(ctx, boardID, session.UserID, ActionBoardUpdated, "board", boardID, ActivityMeta{Kind: ActionBoardUpdated})
	s.broadcast.EmitToBoard(boardID, ActionBoardUpdated, payload)
	return payload, nil
}

func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) error {
	if _, err := s.requireAdmin(ctx, boardID, session.UserID); err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteBoard(boardID)
	}
	s.broadcast.EmitToBoard(boardID, ActionBoardDeleted, map[string]any{"id": boardID})
	return nil
}

// AddMember adds a user to the board by email. The inviter must be an
// admin of the board.
func (s *Service) AddMember(ctx context.Context, session Session, boardID, userEmail, role string) (map[string]any, error) {
	if _, err := s.requireAdmin(ctx, boardID, session.UserID); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(userEmail))
	if err != nil {
		if isNotFound(err) {
			return nil, errValidation("no account with that email", nil)
		}
		return nil, err
	}

	normalized := "member"
	if role == "admin" {
		normalized = "admin"
	}
	if err := s.store.AddMember(ctx, boardID, user.ID, normalized); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errConflict("MEMBER_EXISTS", "User is already a member of this board")
		}
		return nil, err
	}

	meta := ActivityMeta{Kind: ActionMemberAdded, Member: &MemberMeta{UserID: user.ID, DisplayName: user.DisplayName, Role: normalized}}
	s.recordActivity(ctx, boardID, session.UserID, ActionMemberAdded, "member", user.ID, meta)
	s.broadcast.EmitToBoard(boardID, ActionMemberAdded, map[string]any{
		"boardId":     boardID,
		"userId":      user.ID,
		"displayName": user.DisplayName,
		"role":        normalized,
	})

	if s.email != nil && s.email.IsConfigured() {
		board, err := s.store.GetBoard(ctx, boardID)
		if err == nil {
			go func(to, name, boardTitle, by string) {
				if err := s.email.SendBoardInviteEmail(to, name, boardTitle, by); err != nil {
					log.Printf("email: board invite to %s: %v", to, err)
				}
			}(user.Email, user.DisplayName, board.Title, session.UserName)
		}
	}

	return map[string]any{"userId": user.ID, "displayName": user.DisplayName, "role": normalized}, nil
}

// RemoveMember removes a user from the board. Admins can remove
// anyone; members can remove themselves.
func (s *Service) RemoveMember(ctx context.Context, session Session, boardID, userID string) error {
	if userID != session.UserID {
		if _, err := s.requireAdmin(ctx, boardID, session.UserID); err != nil {
			return err
		}
	} else {
		if _, err := s.requireMember(ctx, boardID, session.UserID); err != nil {
			return err
		}
	}

	if err := s.store.RemoveMember(ctx, boardID, userID); err != nil {
		return err
	}

	meta := ActivityMeta{Kind: ActionMemberRemoved, Member: &MemberMeta{UserID: userID}}
	s.recordActivity(ctx, boardID, session.UserID, ActionMemberRemoved, "member", userID, meta)
	s.broadcast.EmitToBoard(boardID, ActionMemberRemoved, map[string]any{"boardId": boardID, "userId": userID})
	return nil
}

func (s *Service) ListMembers(ctx context.Context, session Session, boardID string) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, boardID, session.UserID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, boardID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		items = append(items, memberPayload(m))
	}
	return items, nil
}

func (s *Service) BoardActivity(ctx context.Context, session Session, boardID string, limit int) ([]map[string]any, error) {
	if _, err := s.requireMember(ctx, boardID, session.UserID); err != nil {
		return nil, err
	}
	entries, err := s.store.ActivityForBoard(ctx, boardID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, activityPayload(entry))
	}
	return items, nil
}

// Search queries tasks and boards, scoped to the caller's boards.
func (s *Service) Search(ctx context.Context, session Session, text, filterType, boardID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	boards, err := s.store.ListBoardsForUser(ctx, session.UserID)
	if err != nil {
		return search.Response{}, err
	}
	scope := make([]string, 0, len(boards))
	for _, b := range boards {
		scope = append(scope, b.ID)
	}

	return s.search.Search(search.Query{
		Text:          text,
		FilterType:    search.ResultType(filterType),
		FilterBoardID: boardID,
		BoardIDs:      scope,
		Limit:         limit,
		Offset:        offset,
	}), nil
}
