package userdir

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-eventreg/internal/apperr"
	"ms-eventreg/internal/models"
)

// Directory is the narrow user-directory collaborator the registration
// engine consumes. Methods accept a bun.IDB so lookups and guest creation
// can ride the caller's transaction.
type Directory struct{}

func NewDirectory() *Directory {
	return &Directory{}
}

func (d *Directory) FindUser(ctx context.Context, idb bun.IDB, id string) (*models.User, error) {
	var user models.User
	err := idb.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "user not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load user", err)
	}
	return &user, nil
}

func (d *Directory) FindUserByEmail(ctx context.Context, idb bun.IDB, email string) (*models.User, error) {
	var user models.User
	err := idb.NewSelect().
		Model(&user).
		Where("lower(email) = ?", strings.ToLower(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.NotFound, "user not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to load user", err)
	}
	return &user, nil
}

// CreateGuestUser synthesizes an inert directory entry for a guest
// registration. Guests are plain contact records: no credentials, nothing
// to log in with.
func (d *Directory) CreateGuestUser(ctx context.Context, idb bun.IDB, info models.AttendeeInfo) (string, error) {
	user := models.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(info.Email),
		FullName:     info.Name,
		Phone:        info.Phone,
		Organization: info.Organization,
		IsGuest:      true,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := idb.NewInsert().Model(&user).Exec(ctx); err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to create guest user", err)
	}
	return user.ID, nil
}
