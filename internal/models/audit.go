package models

import "time"

// AuditFields carries the lifecycle columns shared by every entity.
type AuditFields struct {
	ID        string     `db:"id" json:"id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	IsDeleted bool       `db:"is_deleted" json:"is_deleted"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy *string    `db:"deleted_by" json:"deleted_by,omitempty"`
}

// Stamp initialises creation timestamps for a new record.
func (a *AuditFields) Stamp(now time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	a.IsDeleted = false
}

// Touch records a mutation.
func (a *AuditFields) Touch(now time.Time) {
	a.UpdatedAt = now
}

// MarkDeleted flags the record as soft-deleted by actor.
func (a *AuditFields) MarkDeleted(now time.Time, actorID string) {
	a.IsDeleted = true
	a.DeletedAt = &now
	if actorID != "" {
		a.DeletedBy = &actorID
	} else {
		a.DeletedBy = nil
	}
	a.UpdatedAt = now
}

// ClearDeletion reverses MarkDeleted.
func (a *AuditFields) ClearDeletion(now time.Time) {
	a.IsDeleted = false
	a.DeletedAt = nil
	a.DeletedBy = nil
	a.UpdatedAt = now
}

// DeletedMode selects how reads treat soft-deleted rows.
type DeletedMode string

const (
	// DeletedModeActiveOnly hides soft-deleted rows. It is the zero value.
	DeletedModeActiveOnly DeletedMode = ""
	// DeletedModeInclude returns rows regardless of deletion state.
	DeletedModeInclude DeletedMode = "INCLUDE_DELETED"
	// DeletedModeOnly returns soft-deleted rows only, for restore workflows.
	DeletedModeOnly DeletedMode = "DELETED_ONLY"
)

// Valid reports whether the mode is supported.
func (m DeletedMode) Valid() bool {
	switch m {
	case DeletedModeActiveOnly, DeletedModeInclude, DeletedModeOnly:
		return true
	default:
		return false
	}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalizePage applies the default paging window.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
