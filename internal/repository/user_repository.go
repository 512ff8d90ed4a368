package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventis/backstage-api/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository doubles as the user directory the escalation path uses
// to resolve recipient ids into email addresses.
type UserRepository interface {
	CreateUser(ctx context.Context, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	ResolveEmails(ctx context.Context, userIDs []string) (map[string]string, error)
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, password_hash, is_active, roles`

func (u *userRepository) CreateUser(ctx context.Context, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error) {
	if len(roles) == 0 {
		roles = []models.UserRole{models.RoleMember}
	}
	if !models.IsValidRoleList(roles) {
		return models.User{}, errors.New("invalid roles")
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, errors.Wrap(err, "hash password")
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        strings.TrimSpace(strings.ToLower(email)),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		IsActive:     true,
		Roles:        normalized,
	}

	const query = `
		INSERT INTO users (id, email, first_name, last_name, password_hash, is_active, roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = u.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.IsActive,
		pq.Array(rolesToStrings(user.Roles)))
	if err != nil {
		return models.User{}, errors.Wrap(err, "insert user")
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`

	user, err := scanUser(u.db.QueryRowContext(ctx, query, strings.TrimSpace(strings.ToLower(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (u *userRepository) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(u.db.QueryRowContext(ctx, query, userID))
}

// ResolveEmails maps user ids to email addresses. Unknown or inactive
// users are silently absent from the result; the escalation loop skips
// them rather than failing the whole batch.
func (u *userRepository) ResolveEmails(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	const query = `
		SELECT id, email
		FROM users
		WHERE id = ANY($1) AND is_active`

	rows, err := u.db.QueryContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, errors.Wrap(err, "resolve recipient emails")
	}
	defer rows.Close()

	emails := make(map[string]string, len(userIDs))
	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		emails[id] = email
	}
	return emails, rows.Err()
}

func scanUser(row *sql.Row) (models.User, error) {
	var user models.User
	var roles pq.StringArray
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&roles,
	); err != nil {
		return models.User{}, err
	}
	user.Roles = models.EnsureDefaultRole(models.NormalizeRoles(stringsToRoles(roles)))
	return user, nil
}

func rolesToStrings(roles []models.UserRole) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}

func stringsToRoles(raw []string) []models.UserRole {
	out := make([]models.UserRole, len(raw))
	for i, role := range raw {
		out[i] = models.UserRole(role)
	}
	return out
}
