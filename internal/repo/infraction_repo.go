// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Infraction audit log.
//
// All functions are context-aware and accept a *gorm.DB handle. They follow
// the "thin repository" approach: no business logic, only persistence and
// query composition. Database errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-mod-assistant/internal/domain"
)

// InfractionFilter narrows listing queries. Empty fields match everything.
type InfractionFilter struct {
	GuildID string
	UserID  string
}

func (f InfractionFilter) apply(q *gorm.DB) *gorm.DB {
	if f.GuildID != "" {
		q = q.Where("guild_id = ?", f.GuildID)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	return q
}

// CreateInfraction appends in to the audit log. ID and CreatedAt are filled
// when empty.
func CreateInfraction(ctx context.Context, db *gorm.DB, in *domain.Infraction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(in).Error
}

// CountInfractions returns the number of rows matching f.
func CountInfractions(ctx context.Context, db *gorm.DB, f InfractionFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Infraction{})).Count(&total).Error
	return total, err
}

// ListInfractionsPage returns rows matching f, newest first.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListInfractionsPage(ctx context.Context, db *gorm.DB, f InfractionFilter, offset, limit int) ([]domain.Infraction, error) {
	var out []domain.Infraction
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetInfraction loads one row by id or returns ErrNotFound.
func GetInfraction(ctx context.Context, db *gorm.DB, id string) (*domain.Infraction, error) {
	var in domain.Infraction
	err := db.WithContext(ctx).First(&in, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}
