package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"craftpanel.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and applies pool defaults.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Users() UserStore             { return &userStore{db: s.db} }
func (s *PGStore) Sessions() SessionStore       { return &sessionStore{db: s.db} }
func (s *PGStore) Revocations() RevocationStore { return &revocationStore{db: s.db} }
func (s *PGStore) Permissions() PermissionStore { return &permissionStore{db: s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, username, email, email_verified, password_hash, discord_id, group_id, hardware_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.EmailVerified, &u.PasswordHash,
		&u.DiscordID, &u.GroupID, &u.HardwareID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	err := s.db.QueryRowContext(ctx,
		`insert into users(email, email_verified, password_hash, group_id)
		 values($1,$2,$3,$4) returning id, created_at, updated_at`,
		u.Email, u.EmailVerified, u.PasswordHash, u.GroupID,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByLogin(ctx context.Context, login string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1 or email=$1`, login)
	return scanUser(row)
}

func (s *userStore) SetUsername(ctx context.Context, id int64, username string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set username=$2, updated_at=now() where id=$1`, id, username)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *userStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Session store ------------------------------------------------------------

type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into sessions(id, user_id, ip, refresh_secret, kind)
		 values($1,$2,$3,$4,$5) returning created_at, updated_at`,
		sess.ID, sess.UserID, sess.IP, sess.RefreshSecret, sess.Kind,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
}

// Rotate is the compare-and-swap on the refresh secret: the WHERE clause
// matches only the current value, so a concurrent rotation that already
// replaced it makes this update match zero rows.
func (s *sessionStore) Rotate(ctx context.Context, currentSecret, newSecret, ip string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`update sessions set refresh_secret=$2, ip=$3, updated_at=now()
		 where refresh_secret=$1
		 returning id, user_id, ip, kind, created_at, updated_at`,
		currentSecret, newSecret, ip)
	var sess Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.IP, &sess.Kind, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	sess.RefreshSecret = newSecret
	return &sess, nil
}

func (s *sessionStore) ListByUser(ctx context.Context, userID int64) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, ip, kind, created_at, updated_at
		 from sessions where user_id=$1 order by id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.IP, &sess.Kind, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *sessionStore) Terminate(ctx context.Context, sessionID string, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from sessions where id=$1 and user_id=$2`, sessionID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *sessionStore) TerminateAllExcept(ctx context.Context, userID int64, keepSessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from sessions where user_id=$1 and id<>$2`, userID, keepSessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Revocation store ---------------------------------------------------------

type revocationStore struct{ db *sql.DB }

func (s *revocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from blacklisted_jwts where token=$1)`, token).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *revocationStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into blacklisted_jwts(token, expires_at) values($1,$2)
		 on conflict (token) do nothing`,
		token, expiresAt)
	return err
}

func (s *revocationStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from blacklisted_jwts where expires_at is not null and expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Override(ctx context.Context, userID int64, permission string, now time.Time) (*Override, error) {
	row := s.db.QueryRowContext(ctx,
		`select up.user_id, p.name, up.granted, up.expires_at, up.created_at
		 from user_permissions up
		 join permissions p on p.id = up.permission_id
		 where up.user_id=$1 and p.name=$2
		   and (up.expires_at is null or up.expires_at > $3)`,
		userID, permission, now)
	var o Override
	err := row.Scan(&o.UserID, &o.Permission, &o.Granted, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (s *permissionStore) GroupHas(ctx context.Context, groupID int64, permission string) (bool, error) {
	var granted bool
	err := s.db.QueryRowContext(ctx,
		`select exists(
		   select 1 from permission_group_relations r
		   join permissions p on p.id = r.permission_id
		   where r.group_id=$1 and p.name=$2)`,
		groupID, permission).Scan(&granted)
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (s *permissionStore) GroupPermissions(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.name from permissions p
		 join permission_group_relations r on r.permission_id = p.id
		 where r.group_id=$1 order by p.name`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *permissionStore) UserOverrides(ctx context.Context, userID int64, now time.Time) ([]Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`select up.user_id, p.name, up.granted, up.expires_at, up.created_at
		 from user_permissions up
		 join permissions p on p.id = up.permission_id
		 where up.user_id=$1 and (up.expires_at is null or up.expires_at > $2)
		 order by p.name`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.UserID, &o.Permission, &o.Granted, &o.ExpiresAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *permissionStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, category from permissions order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, level, is_default from permissions_groups order by level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Level, &g.Default); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *permissionStore) DefaultGroup(ctx context.Context) (*Group, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, level, is_default from permissions_groups where is_default limit 1`)
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Level, &g.Default)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (s *permissionStore) EnsurePermission(ctx context.Context, name, category string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`insert into permissions(name, category) values($1,$2)
		 on conflict (name) do update set category = excluded.category
		 returning id`,
		name, category).Scan(&id)
	return id, err
}

func (s *permissionStore) EnsureGroup(ctx context.Context, name string, level int, isDefault bool) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`insert into permissions_groups(name, level, is_default) values($1,$2,$3)
		 on conflict (name) do update set level = excluded.level, is_default = excluded.is_default
		 returning id`,
		name, level, isDefault).Scan(&id)
	return id, err
}

func (s *permissionStore) GrantToGroup(ctx context.Context, groupID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`insert into permission_group_relations(group_id, permission_id) values($1,$2)
		 on conflict do nothing`,
		groupID, permissionID)
	return err
}

func (s *permissionStore) RevokeFromGroup(ctx context.Context, groupID int64, permission string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from permission_group_relations
		 where group_id=$1 and permission_id = (select id from permissions where name=$2)`,
		groupID, permission)
	return err
}

func (s *permissionStore) SetOverride(ctx context.Context, o Override) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_permissions(user_id, permission_id, granted, expires_at)
		 select $1, id, $3, $4 from permissions where name=$2
		 on conflict (user_id, permission_id) do update
		   set granted = excluded.granted, expires_at = excluded.expires_at`,
		o.UserID, o.Permission, o.Granted, o.ExpiresAt)
	return err
}

func (s *permissionStore) ClearOverride(ctx context.Context, userID int64, permission string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_permissions
		 where user_id=$1 and permission_id = (select id from permissions where name=$2)`,
		userID, permission)
	return err
}
