package availability

import (
	"context"

	"github.com/google/uuid"
)

type DoctorStore interface {
	CreateDoctor(ctx context.Context, d *Doctor) error
	// GetDoctor fails with apperr.NotFound for unknown ids.
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type TemplateStore interface {
	ListTemplate(ctx context.Context, doctorID uuid.UUID) ([]TemplateEntry, error)
	// ReplaceTemplate swaps the doctor's whole template in one unit of work.
	ReplaceTemplate(ctx context.Context, doctorID uuid.UUID, entries []TemplateEntry) error
}

type ExceptionStore interface {
	ListExceptions(ctx context.Context, doctorID uuid.UUID) ([]Exception, error)
	// GetException returns nil, nil when the date has no exception.
	GetException(ctx context.Context, doctorID uuid.UUID, date Date) (*Exception, error)
	UpsertException(ctx context.Context, e *Exception) error
	DeleteException(ctx context.Context, doctorID uuid.UUID, date Date) error
}
