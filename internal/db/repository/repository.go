package repository

import "context"

// Repository is the CRUD surface shared by the model repositories. The
// concrete types add their model-specific queries on top.
type Repository[T any] interface {
	Create(ctx context.Context, arg *T) (*T, error)
	GetByID(ctx context.Context, id string) (*T, error)
	UpdateByID(ctx context.Context, id string, arg *T) (*T, error)
	DeleteByID(ctx context.Context, id string) error
}
