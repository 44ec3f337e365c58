package repository

import (
	"context"
	"errors"
	"fmt"

	"openpaws/pkg/db/option"
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/tenancy"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TenantOwned is implemented by every model stored through Tenanted.
type TenantOwned interface {
	SetOrganizationID(id string)
}

// Tenanted is the organization-scoped repository. Every call reads the
// scope from ctx and filters on organization_id in the WHERE clause, so a
// foreign id is indistinguishable from a missing one.
type Tenanted[T any] interface {
	Get(ctx context.Context, id string) (*T, error)
	List(ctx context.Context, filter *T, page pagination.Pagination, opts ...option.QueryOption) ([]*T, int64, error)
	Create(ctx context.Context, v *T) error
	Update(ctx context.Context, id string, values map[string]any) (*T, error)
	Delete(ctx context.Context, id string) error
	Upsert(ctx context.Context, v *T, conflict []string, updates []string) error
	// Transition updates id only while its column still holds one of from.
	// It reports whether the row was changed.
	Transition(ctx context.Context, id, column string, from []string, values map[string]any) (bool, error)
	WithTrx(tx *gorm.DB) Tenanted[T]
}

type tenanted[T any] struct {
	db   *gorm.DB
	name string
}

// ProvideTenanted builds a scoped repository. name is used in NotFound
// messages ("post not found").
func ProvideTenanted[T any](db *gorm.DB, name string) Tenanted[T] {
	return &tenanted[T]{db: db, name: name}
}

func (r *tenanted[T]) WithTrx(tx *gorm.DB) Tenanted[T] {
	if tx == nil {
		return r
	}
	return &tenanted[T]{db: tx, name: r.name}
}

func (r *tenanted[T]) scoped(ctx context.Context) (*gorm.DB, tenancy.Scope, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, scope, err
	}
	return r.db.WithContext(ctx).Model(new(T)).Where("organization_id = ?", scope.TenantID), scope, nil
}

func (r *tenanted[T]) notFound() error {
	return errutil.NotFound(fmt.Sprintf("%s not found", r.name), nil)
}

func (r *tenanted[T]) Get(ctx context.Context, id string) (*T, error) {
	q, _, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}

	var out T
	if err := q.Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, r.notFound()
		}
		return nil, errutil.Internal("failed to load "+r.name, err)
	}
	return &out, nil
}

func (r *tenanted[T]) List(ctx context.Context, filter *T, page pagination.Pagination, opts ...option.QueryOption) ([]*T, int64, error) {
	q, _, err := r.scoped(ctx)
	if err != nil {
		return nil, 0, err
	}
	if filter != nil {
		q = q.Where(filter)
	}
	q = option.Apply(q, opts...)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, errutil.Internal("failed to count "+r.name, err)
	}

	var items []*T
	err = q.Session(&gorm.Session{}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Scopes(option.ApplyPagination(page)).
		Find(&items).Error
	if err != nil {
		return nil, 0, errutil.Internal("failed to list "+r.name, err)
	}
	return items, total, nil
}

// Create stamps the scope's organization on v before inserting it.
func (r *tenanted[T]) Create(ctx context.Context, v *T) error {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	owned, ok := any(v).(TenantOwned)
	if !ok {
		return errutil.Internal(fmt.Sprintf("%s is not tenant owned", r.name), nil)
	}
	owned.SetOrganizationID(scope.TenantID)

	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errutil.Conflict(r.name+" already exists", err)
		}
		return errutil.Internal("failed to create "+r.name, err)
	}
	return nil
}

func (r *tenanted[T]) Update(ctx context.Context, id string, values map[string]any) (*T, error) {
	q, _, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	delete(values, "organization_id")
	delete(values, "id")

	if len(values) > 0 {
		res := q.Where("id = ?", id).Updates(values)
		if res.Error != nil {
			return nil, errutil.Internal("failed to update "+r.name, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, r.notFound()
		}
	}
	return r.Get(ctx, id)
}

func (r *tenanted[T]) Delete(ctx context.Context, id string) error {
	q, _, err := r.scoped(ctx)
	if err != nil {
		return err
	}
	res := q.Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return errutil.Internal("failed to delete "+r.name, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.notFound()
	}
	return nil
}

// Upsert inserts v or, when a row with the same natural key exists in the
// caller's organization, overwrites the listed columns. A conflicting row
// owned by another organization is left untouched and reported as not found.
func (r *tenanted[T]) Upsert(ctx context.Context, v *T, conflict []string, updates []string) error {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	owned, ok := any(v).(TenantOwned)
	if !ok {
		return errutil.Internal(fmt.Sprintf("%s is not tenant owned", r.name), nil)
	}
	owned.SetOrganizationID(scope.TenantID)

	table, err := r.table()
	if err != nil {
		return errutil.Internal("failed to resolve "+r.name+" table", err)
	}

	columns := make([]clause.Column, 0, len(conflict))
	for _, c := range conflict {
		columns = append(columns, clause.Column{Name: c})
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(updates),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: table, Name: "organization_id"}, Value: scope.TenantID},
		}},
	}).Create(v)
	if res.Error != nil {
		return errutil.Internal("failed to upsert "+r.name, res.Error)
	}
	if res.RowsAffected == 0 {
		return r.notFound()
	}
	return nil
}

func (r *tenanted[T]) Transition(ctx context.Context, id, column string, from []string, values map[string]any) (bool, error) {
	q, _, err := r.scoped(ctx)
	if err != nil {
		return false, err
	}
	res := q.Where("id = ?", id).Where(clause.IN{Column: clause.Column{Name: column}, Values: toAny(from)}).Updates(values)
	if res.Error != nil {
		return false, errutil.Internal("failed to update "+r.name, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *tenanted[T]) table() (string, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(new(T)); err != nil {
		return "", err
	}
	return stmt.Schema.Table, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
