package user

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
)

// Store is the directory slice the rest of the app consumes. The messaging
// core only reads identity fields and mutates the online flag and push
// tokens; account writes belong to the credential endpoints.
type Store interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id int) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
	SetOnline(ctx context.Context, id int, online bool) error
	AddPushToken(ctx context.Context, userID int, token string) error
	PushTokens(ctx context.Context, userID int) ([]string, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (r *SQLStore) CreateUser(ctx context.Context, user *User) (*User, error) {
	query := "INSERT INTO users (username, password, avatar) VALUES ($1, $2, $3) RETURNING id, created_at"

	err := r.db.QueryRowContext(ctx, query, user.Username, user.Password, user.Avatar).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ErrUsernameTaken
		}
		return nil, errors.Wrap(err, "userStore.CreateUser.Scan")
	}

	return user, nil
}

func (r *SQLStore) GetByID(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password, avatar, online, created_at FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Username, &u.Password, &u.Avatar, &u.Online, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "userStore.GetByID.Scan")
	}

	return u, nil
}

func (r *SQLStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password, avatar, online, created_at FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&u.ID, &u.Username, &u.Password, &u.Avatar, &u.Online, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "userStore.GetByUsername.Scan")
	}

	return u, nil
}

func (r *SQLStore) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username, avatar, online FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, errors.Wrap(err, "userStore.SearchUsers.Query")
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Avatar, &u.Online); err != nil {
			return nil, errors.Wrap(err, "userStore.SearchUsers.Scan")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetOnline is a best-effort flag write; the session counter decides when it
// is called, so a plain overwrite is safe here.
func (r *SQLStore) SetOnline(ctx context.Context, id int, online bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET online = $1 WHERE id = $2", online, id)
	return errors.Wrap(err, "userStore.SetOnline.Exec")
}

func (r *SQLStore) AddPushToken(ctx context.Context, userID int, token string) error {
	query := `INSERT INTO push_tokens (user_id, token) VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id`
	_, err := r.db.ExecContext(ctx, query, userID, token)
	return errors.Wrap(err, "userStore.AddPushToken.Exec")
}

func (r *SQLStore) PushTokens(ctx context.Context, userID int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT token FROM push_tokens WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, errors.Wrap(err, "userStore.PushTokens.Query")
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, errors.Wrap(err, "userStore.PushTokens.Scan")
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
