package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskboard/api/internal/sequence"
)

var (
	// ErrDuplicate reports an insert that would duplicate a unique pair
	// (board membership, task assignment).
	ErrDuplicate = errors.New("duplicate row")
	// ErrPositionOutOfRange reports a move target outside [0, siblings].
	ErrPositionOutOfRange = errors.New("position out of range")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, is_email_verified
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return noRowsAsErr(result)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sessions

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Boards and membership

// InsertBoard creates the board and its creator's admin membership in
// one transaction.
func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert board: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO boards (id, title, description, created_by)
		VALUES ($1, $2, $3, $4)
	`, board.ID, board.Title, board.Description, board.CreatedBy); err != nil {
		return fmt.Errorf("insert board: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role)
		VALUES ($1, $2, 'admin')
	`, board.ID, board.CreatedBy); err != nil {
		return fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert board: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, created_by, created_at, updated_at
		FROM boards
		WHERE id=$1
	`, boardID).Scan(&board.ID, &board.Title, &board.Description, &board.CreatedBy, &board.CreatedAt, &board.UpdatedAt)
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *PostgresStore) UpdateBoard(ctx context.Context, boardID, title, description string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE boards SET title=$2, description=$3, updated_at=NOW() WHERE id=$1
	`, boardID, title, description)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return noRowsAsErr(result)
}

// DeleteBoard cascades to lists, tasks, memberships, assignments,
// activities and attachment rows via foreign keys.
func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return noRowsAsErr(result)
}

func (s *PostgresStore) ListBoardsForUser(ctx context.Context, userID string) ([]BoardWithRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.description, b.created_by, b.created_at, b.updated_at, bm.role
		FROM boards b
		JOIN board_members bm ON bm.board_id = b.id
		WHERE bm.user_id = $1
		ORDER BY b.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]BoardWithRole, 0)
	for rows.Next() {
		var item BoardWithRole
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt, &item.Role); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, boardID, userID string) (BoardMember, error) {
	var member BoardMember
	err := s.db.QueryRowContext(ctx, `
		SELECT bm.board_id, bm.user_id, bm.role, u.display_name, u.email, bm.added_at
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id=$1 AND bm.user_id=$2
	`, boardID, userID).Scan(&member.BoardID, &member.UserID, &member.Role, &member.DisplayName, &member.Email, &member.AddedAt)
	if err != nil {
		return BoardMember{}, err
	}
	return member, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, boardID, userID, role string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, user_id) DO NOTHING
	`, boardID, userID, role)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

// RemoveMember deletes the membership and, in the same transaction, the
// user's task assignments on that board. A removed member must not stay
// assigned to the board's tasks.
func (s *PostgresStore) RemoveMember(ctx context.Context, boardID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove member: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM board_members WHERE board_id=$1 AND user_id=$2`, boardID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if err := noRowsAsErr(result); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM task_assignees ta
		USING tasks t, lists l
		WHERE ta.task_id = t.id AND t.list_id = l.id
			AND l.board_id = $1 AND ta.user_id = $2
	`, boardID, userID); err != nil {
		return fmt.Errorf("remove member assignments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, boardID string) ([]BoardMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bm.board_id, bm.user_id, bm.role, u.display_name, u.email, bm.added_at
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id=$1
		ORDER BY bm.added_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]BoardMember, 0)
	for rows.Next() {
		var item BoardMember
		if err := rows.Scan(&item.BoardID, &item.UserID, &item.Role, &item.DisplayName, &item.Email, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Lists

func (s *PostgresStore) GetList(ctx context.Context, listID string) (List, error) {
	var list List
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, title, position, created_at, updated_at
		FROM lists
		WHERE id=$1
	`, listID).Scan(&list.ID, &list.BoardID, &list.Title, &list.Position, &list.CreatedAt, &list.UpdatedAt)
	if err != nil {
		return List{}, err
	}
	return list, nil
}

func (s *PostgresStore) ListsForBoard(ctx context.Context, boardID string) ([]List, error) {
	return scanLists(s.db.QueryContext(ctx, `
		SELECT id, board_id, title, position, created_at, updated_at
		FROM lists
		WHERE board_id=$1
		ORDER BY position ASC
	`, boardID))
}

// CreateList appends a new list to the board. The board row is locked
// for the duration of the transaction so concurrent appends and moves on
// the same board serialize and cannot mint duplicate positions.
func (s *PostgresStore) CreateList(ctx context.Context, list List) (List, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return List{}, fmt.Errorf("begin create list: %w", err)
	}
	defer tx.Rollback()

	if err := lockBoard(ctx, tx, list.BoardID); err != nil {
		return List{}, err
	}

	var maxPos int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1) FROM lists WHERE board_id=$1
	`, list.BoardID).Scan(&maxPos); err != nil {
		return List{}, fmt.Errorf("max list position: %w", err)
	}
	list.Position = sequence.InsertPosition(maxPos)

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO lists (id, board_id, title, position)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, list.ID, list.BoardID, list.Title, list.Position).Scan(&list.CreatedAt, &list.UpdatedAt); err != nil {
		return List{}, fmt.Errorf("insert list: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return List{}, fmt.Errorf("commit create list: %w", err)
	}
	return list, nil
}

func (s *PostgresStore) RenameList(ctx context.Context, listID, title string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE lists SET title=$2, updated_at=NOW() WHERE id=$1`, listID, title)
	if err != nil {
		return fmt.Errorf("rename list: %w", err)
	}
	return noRowsAsErr(result)
}

// MoveList reorders a list within its board. Sibling positions are read
// after the board lock is taken, so the shifts are computed against
// committed state and applied with the target's update atomically.
func (s *PostgresStore) MoveList(ctx context.Context, boardID, listID string, newPos int) (List, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return List{}, fmt.Errorf("begin move list: %w", err)
	}
	defer tx.Rollback()

	if err := lockBoard(ctx, tx, boardID); err != nil {
		return List{}, err
	}

	siblings, err := scanLists(tx.QueryContext(ctx, `
		SELECT id, board_id, title, position, created_at, updated_at
		FROM lists
		WHERE board_id=$1
		ORDER BY position ASC
	`, boardID))
	if err != nil {
		return List{}, err
	}

	var moved *List
	collection := make([]sequence.Item, 0, len(siblings))
	for i := range siblings {
		collection = append(collection, sequence.Item{ID: siblings[i].ID, Position: siblings[i].Position})
		if siblings[i].ID == listID {
			moved = &siblings[i]
		}
	}
	if moved == nil {
		return List{}, sql.ErrNoRows
	}
	if !sequence.InRange(newPos, len(siblings)-1) {
		return List{}, ErrPositionOutOfRange
	}

	shifts := sequence.Reorder(collection, listID, moved.Position, newPos)
	if err := applyShifts(ctx, tx, "lists", shifts); err != nil {
		return List{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE lists SET position=$2, updated_at=NOW() WHERE id=$1`, listID, newPos); err != nil {
		return List{}, fmt.Errorf("move list: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return List{}, fmt.Errorf("commit move list: %w", err)
	}
	moved.Position = newPos
	return *moved, nil
}

// DeleteList removes the list (its tasks cascade) and renumbers the
// remaining siblings in one transaction.
func (s *PostgresStore) DeleteList(ctx context.Context, list List) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete list: %w", err)
	}
	defer tx.Rollback()

	if err := lockBoard(ctx, tx, list.BoardID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id=$1`, list.ID)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if err := noRowsAsErr(result); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE lists SET position = position - 1
		WHERE board_id=$1 AND position > $2
	`, list.BoardID, list.Position); err != nil {
		return fmt.Errorf("shift lists after delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete list: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tasks

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (TaskWithBoard, error) {
	var task TaskWithBoard
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.list_id, t.title, t.description, t.position, t.due_date, t.created_at, t.updated_at,
			l.board_id, l.title
		FROM tasks t
		JOIN lists l ON l.id = t.list_id
		WHERE t.id=$1
	`, taskID).Scan(
		&task.ID, &task.ListID, &task.Title, &task.Description, &task.Position,
		&task.DueDate, &task.CreatedAt, &task.UpdatedAt, &task.BoardID, &task.ListTitle,
	)
	if err != nil {
		return TaskWithBoard{}, err
	}
	return task, nil
}

func (s *PostgresStore) TasksForList(ctx context.Context, listID string) ([]Task, error) {
	return scanTasks(s.db.QueryContext(ctx, `
		SELECT id, list_id, title, description, position, due_date, created_at, updated_at
		FROM tasks
		WHERE list_id=$1
		ORDER BY position ASC
	`, listID))
}

func (s *PostgresStore) TasksForBoard(ctx context.Context, boardID string) ([]Task, error) {
	return scanTasks(s.db.QueryContext(ctx, `
		SELECT t.id, t.list_id, t.title, t.description, t.position, t.due_date, t.created_at, t.updated_at
		FROM tasks t
		JOIN lists l ON l.id = t.list_id
		WHERE l.board_id=$1
		ORDER BY t.position ASC
	`, boardID))
}

// CreateTask appends a task to its list under the board lock.
func (s *PostgresStore) CreateTask(ctx context.Context, boardID string, task Task) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin create task: %w", err)
	}
	defer tx.Rollback()

	if err := lockBoard(ctx, tx, boardID); err != nil {
		return Task{}, err
	}

	var maxPos int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1) FROM tasks WHERE list_id=$1
	`, task.ListID).Scan(&maxPos); err != nil {
		return Task{}, fmt.Errorf("max task position: %w", err)
	}
	task.Position = sequence.InsertPosition(maxPos)

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO tasks (id, list_id, title, description, position, due_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, task.ID, task.ListID, task.Title, task.Description, task.Position, task.DueDate).Scan(&task.CreatedAt, &task.UpdatedAt); err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit create task: %w", err)
	}
	return task, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, taskID, title, description string, dueDate *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title=$2, description=$3, due_date=$4, updated_at=NOW() WHERE id=$1
	`, taskID, title, description, dueDate)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return noRowsAsErr(result)
}

// MoveTask moves a task to destListID at newPos. Both the within-list
// reorder and the cross-list transfer run under the board lock: all
// sibling shifts in the source and destination lists plus the task's own
// list/position update commit together or not at all. The caller has
// already verified that the destination list belongs to the same board.
func (s *PostgresStore) MoveTask(ctx context.Context, boardID, taskID, destListID string, newPos int) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("begin move task: %w", err)
	}
	defer tx.Rollback()

	if err := lockBoard(ctx, tx, boardID); err != nil {
		return Task{}, err
	}

	var task Task
	if err := tx.QueryRowContext(ctx, `
		SELECT id, list_id, title, description, position, due_date, created_at, updated_at
		FROM tasks WHERE id=$1
	`, taskID).Scan(&task.ID, &task.ListID, &task.Title, &task.Description, &task.Position, &task.DueDate, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return Task{}, err
	}

	if task.ListID == destListID {
		siblings, err := txTaskItems(ctx, tx, destListID)
		if err != nil {
			return Task{}, err
		}
		if !sequence.InRange(newPos, len(siblings)-1) {
			return Task{}, ErrPositionOutOfRange
		}
		shifts := sequence.Reorder(siblings, taskID, task.Position, newPos)
		if err := applyShifts(ctx, tx, "tasks", shifts); err != nil {
			return Task{}, err
		}
	} else {
		source, err := txTaskItems(ctx, tx, task.ListID)
		if err != nil {
			return Task{}, err
		}
		dest, err := txTaskItems(ctx, tx, destListID)
		if err != nil {
			return Task{}, err
		}

		remaining := make([]sequence.Item, 0, len(source))
		for _, item := range source {
			if item.ID != taskID {
				remaining = append(remaining, item)
			}
		}
		newPos = sequence.Clamp(newPos, len(dest))

		sourceShifts, destShifts := sequence.CrossParentMove(remaining, dest, task.Position, newPos)
		if err := applyShifts(ctx, tx, "tasks", sourceShifts); err != nil {
			return Task{}, err
		}
		if err := applyShifts(ctx, tx, "tasks", destShifts); err != nil {
			return Task{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET list_id=$2, position=$3, updated_at=NOW() WHERE id=$1
	`, taskID, destListID, newPos); err != nil {
		return Task{}, fmt.Errorf("move task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit move task: %w", err)
	}
	task.ListID = destListID
	task.Position = newPos
	return task, nil
}

// DeleteTask removes the task and closes the gap in its list.
func (s *PostgresStore) DeleteTask(ctx context.Context, boardID string, task Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete task: %w", err)
	}
	defer tx.Rollback()

	if err := lockBoard(ctx, tx, boardID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, task.ID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := noRowsAsErr(result); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET position = position - 1
		WHERE list_id=$1 AND position > $2
	`, task.ListID, task.Position); err != nil {
		return fmt.Errorf("shift tasks after delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete task: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Assignees

func (s *PostgresStore) AddAssignee(ctx context.Context, taskID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO task_assignees (task_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (task_id, user_id) DO NOTHING
	`, taskID, userID)
	if err != nil {
		return fmt.Errorf("add assignee: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add assignee: %w", err)
	}
	if affected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) RemoveAssignee(ctx context.Context, taskID, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=$1 AND user_id=$2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("remove assignee: %w", err)
	}
	return noRowsAsErr(result)
}

func (s *PostgresStore) AssigneesForTask(ctx context.Context, taskID string) ([]TaskAssignee, error) {
	return scanAssignees(s.db.QueryContext(ctx, `
		SELECT ta.task_id, ta.user_id, u.display_name, ta.assigned_at
		FROM task_assignees ta
		JOIN users u ON u.id = ta.user_id
		WHERE ta.task_id=$1
		ORDER BY ta.assigned_at ASC
	`, taskID))
}

func (s *PostgresStore) AssigneesForBoard(ctx context.Context, boardID string) ([]TaskAssignee, error) {
	return scanAssignees(s.db.QueryContext(ctx, `
		SELECT ta.task_id, ta.user_id, u.display_name, ta.assigned_at
		FROM task_assignees ta
		JOIN users u ON u.id = ta.user_id
		JOIN tasks t ON t.id = ta.task_id
		JOIN lists l ON l.id = t.list_id
		WHERE l.board_id=$1
		ORDER BY ta.assigned_at ASC
	`, boardID))
}

// ---------------------------------------------------------------------------
// Activity

func (s *PostgresStore) InsertActivity(ctx context.Context, activity Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, board_id, user_id, action, entity_type, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, activity.ID, activity.BoardID, activity.UserID, activity.Action, activity.EntityType, activity.EntityID, activity.Metadata)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActivityForBoard(ctx context.Context, boardID string, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.board_id, a.user_id, u.display_name, a.action, a.entity_type, a.entity_id, a.metadata::text, a.created_at
		FROM activities a
		JOIN users u ON u.id = a.user_id
		WHERE a.board_id=$1
		ORDER BY a.created_at DESC
		LIMIT $2
	`, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var item Activity
		if err := rows.Scan(&item.ID, &item.BoardID, &item.UserID, &item.ActorName, &item.Action, &item.EntityType, &item.EntityID, &item.Metadata, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Attachments

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, task_id, file_name, content_type, size_bytes, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attachment.ID, attachment.TaskID, attachment.FileName, attachment.ContentType, attachment.Size, attachment.ObjectKey, attachment.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, file_name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM attachments
		WHERE id=$1
	`, attachmentID).Scan(&item.ID, &item.TaskID, &item.FileName, &item.ContentType, &item.Size, &item.ObjectKey, &item.UploadedBy, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) AttachmentsForTask(ctx context.Context, taskID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, file_name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM attachments
		WHERE task_id=$1
		ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.FileName, &item.ContentType, &item.Size, &item.ObjectKey, &item.UploadedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return noRowsAsErr(result)
}

// ---------------------------------------------------------------------------
// Helpers

// lockBoard takes a row lock on the board for the life of the
// transaction. Every position-shifting transaction goes through this, so
// concurrent shifters on the same board serialize and each one computes
// its shifts against committed state. Lists and tasks share the one lock
// point; a cross-list task move never takes a second lock, so there is
// no lock ordering to get wrong.
func lockBoard(ctx context.Context, tx *sql.Tx, boardID string) error {
	var id string
	return tx.QueryRowContext(ctx, `SELECT id FROM boards WHERE id=$1 FOR UPDATE`, boardID).Scan(&id)
}

func applyShifts(ctx context.Context, tx *sql.Tx, table string, shifts []sequence.Shift) error {
	for _, shift := range shifts {
		query := fmt.Sprintf(`UPDATE %s SET position = position + $2 WHERE id = $1`, table)
		if _, err := tx.ExecContext(ctx, query, shift.ID, shift.Delta); err != nil {
			return fmt.Errorf("shift %s position: %w", table, err)
		}
	}
	return nil
}

func txTaskItems(ctx context.Context, tx *sql.Tx, listID string) ([]sequence.Item, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, position FROM tasks WHERE list_id=$1 ORDER BY position ASC`, listID)
	if err != nil {
		return nil, fmt.Errorf("read task positions: %w", err)
	}
	defer rows.Close()

	items := make([]sequence.Item, 0)
	for rows.Next() {
		var item sequence.Item
		if err := rows.Scan(&item.ID, &item.Position); err != nil {
			return nil, fmt.Errorf("scan task position: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task positions: %w", err)
	}
	return items, nil
}

func scanLists(rows *sql.Rows, err error) ([]List, error) {
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	items := make([]List, 0)
	for rows.Next() {
		var item List
		if err := rows.Scan(&item.ID, &item.BoardID, &item.Title, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return items, nil
}

func scanTasks(rows *sql.Rows, err error) ([]Task, error) {
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(&item.ID, &item.ListID, &item.Title, &item.Description, &item.Position, &item.DueDate, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func scanAssignees(rows *sql.Rows, err error) ([]TaskAssignee, error) {
	if err != nil {
		return nil, fmt.Errorf("query assignees: %w", err)
	}
	defer rows.Close()

	items := make([]TaskAssignee, 0)
	for rows.Next() {
		var item TaskAssignee
		if err := rows.Scan(&item.TaskID, &item.UserID, &item.DisplayName, &item.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignees: %w", err)
	}
	return items, nil
}

func noRowsAsErr(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
