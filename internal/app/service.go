package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskboard/api/internal/attach"
	"taskboard/api/internal/auth"
	"taskboard/api/internal/authpw"
	"taskboard/api/internal/config"
	"taskboard/api/internal/email"
	"taskboard/api/internal/rbac"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service needs. Satisfied by
// *store.PostgresStore; tests substitute a fake.
type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertBoard(ctx context.Context, board store.Board) error
	GetBoard(ctx context.Context, boardID string) (store.Board, error)
	UpdateBoard(ctx context.Context, boardID, title, description string) error
	DeleteBoard(ctx context.Context, boardID string) error
	ListBoardsForUser(ctx context.Context, userID string) ([]store.BoardWithRole, error)
	GetMembership(ctx context.Context, boardID, userID string) (store.BoardMember, error)
	AddMember(ctx context.Context, boardID, userID, role string) error
	RemoveMember(ctx context.Context, boardID, userID string) error
	ListMembers(ctx context.Context, boardID string) ([]store.BoardMember, error)

	GetList(ctx context.Context, listID string) (store.List, error)
	ListsForBoard(ctx context.Context, boardID string) ([]store.List, error)
	CreateList(ctx context.Context, list store.List) (store.List, error)
	RenameList(ctx context.Context, listID, title string) error
	MoveList(ctx context.Context, boardID, listID string, newPos int) (store.List, error)
	DeleteList(ctx context.Context, list store.List) error

	GetTask(ctx context.Context, taskID string) (store.TaskWithBoard, error)
	TasksForList(ctx context.Context, listID string) ([]store.Task, error)
	TasksForBoard(ctx context.Context, boardID string) ([]store.Task, error)
	CreateTask(ctx context.Context, boardID string, task store.Task) (store.Task, error)
	UpdateTask(ctx context.Context, taskID, title, description string, dueDate *time.Time) error
	MoveTask(ctx context.Context, boardID, taskID, destListID string, newPos int) (store.Task, error)
	DeleteTask(ctx context.Context, boardID string, task store.Task) error

	AddAssignee(ctx context.Context, taskID, userID string) error
	RemoveAssignee(ctx context.Context, taskID, userID string) error
	AssigneesForTask(ctx context.Context, taskID string) ([]store.TaskAssignee, error)
	AssigneesForBoard(ctx context.Context, boardID string) ([]store.TaskAssignee, error)

	InsertActivity(ctx context.Context, activity store.Activity) error
	ActivityForBoard(ctx context.Context, boardID string, limit int) ([]store.Activity, error)

	InsertAttachment(ctx context.Context, attachment store.Attachment) error
	GetAttachment(ctx context.Context, attachmentID string) (store.Attachment, error)
	AttachmentsForTask(ctx context.Context, taskID string) ([]store.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error
}

// sessionStore holds refresh tokens. Redis in production; the Postgres
// fallback keeps single-node deployments working without it.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pgSessions struct {
	store interface {
		SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
		LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
		RevokeRefreshSession(ctx context.Context, tokenHash string) error
	}
}

func (p pgSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type noopBroadcaster struct{}

func (noopBroadcaster) EmitToBoard(boardID, event string, payload any) {}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	authpw    *authpw.Service
	broadcast realtime.Broadcaster
	search    *search.Service
	email     *email.Service
	attach    *attach.Service
}

// New wires the service. sessions may be nil (falls back to Postgres),
// broadcast may be nil (events are dropped), search, emailSvc, and
// attachSvc may be nil (those features report unavailable).
func New(cfg config.Config, pg *store.PostgresStore, sessions sessionStore, broadcast realtime.Broadcaster, searchSvc *search.Service, emailSvc *email.Service, attachSvc *attach.Service) *Service {
	if sessions == nil {
		sessions = pgSessions{store: pg}
	}
	if broadcast == nil {
		broadcast = noopBroadcaster{}
	}
	return &Service{
		cfg:       cfg,
		store:     pg,
		sessions:  sessions,
		authpw:    authpw.NewService(pg),
		broadcast: broadcast,
		search:    searchSvc,
		email:     emailSvc,
		attach:    attachSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// CreateSession issues an access and refresh token pair for a
// verified user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the old one is revoked in the
// same call that validates it, so a replayed token fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// requireMember loads the caller's membership, mapping a missing row
// to Forbidden. Non-members learn nothing about a board, not even
// whether it exists.
func (s *Service) requireMember(ctx context.Context, boardID, userID string) (store.BoardMember, error) {
	member, err := s.store.GetMembership(ctx, boardID, userID)
	if err != nil {
		if isNotFound(err) {
			return store.BoardMember{}, errForbidden("Forbidden")
		}
		return store.BoardMember{}, err
	}
	return member, nil
}

func (s *Service) requireAdmin(ctx context.Context, boardID, userID string) (store.BoardMember, error) {
	member, err := s.requireMember(ctx, boardID, userID)
	if err != nil {
		return store.BoardMember{}, err
	}
	if !rbac.Can(rbac.Normalize(member.Role), rbac.ActionAdmin) {
		return store.BoardMember{}, errForbidden("Admin role required")
	}
	return member, nil
}
