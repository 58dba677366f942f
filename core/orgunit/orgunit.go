// Package orgunit manages the organizational units (faculties, departments, ...) owning curriculum entities.
package orgunit

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const (
	TypeUniversity = "UNIVERSITY"
	TypeFaculty    = "FACULTY"
	TypeDepartment = "DEPARTMENT"
	TypeCenter     = "CENTER"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("org unit")
)

type OrgUnit struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewOrgUnit contains information needed to create a new OrgUnit.
type NewOrgUnit struct {
	Code     string  `json:"code" validate:"required,max=32,code"`
	Name     string  `json:"name" validate:"required,max=255"`
	Type     string  `json:"type" validate:"required,oneof=UNIVERSITY FACULTY DEPARTMENT CENTER"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
}

func (nu *NewOrgUnit) Validate(validate *validator.Validate) error {
	nu.Code = core.CleanString(nu.Code)
	nu.Name = core.CleanString(nu.Name)
	return validate.Struct(nu)
}

// UpdateOrgUnit defines what information may be provided to modify an existing OrgUnit.
type UpdateOrgUnit struct {
	Code     *string `json:"code" validate:"omitempty,max=32,code"`
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Type     *string `json:"type" validate:"omitempty,oneof=UNIVERSITY FACULTY DEPARTMENT CENTER"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
}

func (uu *UpdateOrgUnit) Validate(validate *validator.Validate) error {
	core.CleanStringPtr(uu.Code)
	core.CleanStringPtr(uu.Name)
	return validate.Struct(uu)
}

type QueryFilter struct {
	Search string `query:"search"`
	Type   string `query:"type"`
}

type (
	Repository interface {
		CreateOrgUnit(ctx context.Context, ou OrgUnit, tx ...core.DBTransactor) (OrgUnit, error)
		GetOrgUnit(ctx context.Context, id string, tx ...core.DBTransactor) (OrgUnit, error)
		QueryOrgUnits(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]OrgUnit, error)
		UpdateOrgUnit(ctx context.Context, ou OrgUnit, tx ...core.DBTransactor) (OrgUnit, error)
		DeleteOrgUnit(ctx context.Context, id string, tx ...core.DBTransactor) error
	}

	Service interface {
		Create(ctx context.Context, nu NewOrgUnit) (OrgUnit, error)
		GetByID(ctx context.Context, id string, tx ...core.DBTransactor) (OrgUnit, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]OrgUnit, error)
		Update(ctx context.Context, id string, uu UpdateOrgUnit) (OrgUnit, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, nu NewOrgUnit) (OrgUnit, error) {
	now := time.Now().UTC()
	ou, err := svc.repo.CreateOrgUnit(ctx, OrgUnit{
		Code:      nu.Code,
		Name:      nu.Name,
		Type:      nu.Type,
		ParentID:  nu.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return OrgUnit{}, errors.Wrap(err, "creating org unit")
	}
	return ou, nil
}

func (svc *service) GetByID(ctx context.Context, id string, tx ...core.DBTransactor) (OrgUnit, error) {
	return svc.repo.GetOrgUnit(ctx, id, tx...)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]OrgUnit, error) {
	filter.Search = core.CleanString(filter.Search)
	ordering = core.FilterOrderings(ordering, "code", "name", "type", "created_at")
	return svc.repo.QueryOrgUnits(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateOrgUnit) (OrgUnit, error) {
	ou, err := svc.repo.GetOrgUnit(ctx, id)
	if err != nil {
		return OrgUnit{}, err
	}
	if uu.ParentID != nil && *uu.ParentID == id {
		return OrgUnit{}, core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: "an org unit cannot be its own parent"})
	}

	if uu.Code != nil {
		ou.Code = *uu.Code
	}
	if uu.Name != nil {
		ou.Name = *uu.Name
	}
	if uu.Type != nil {
		ou.Type = *uu.Type
	}
	if uu.ParentID != nil {
		ou.ParentID = uu.ParentID
	}
	ou.UpdatedAt = time.Now().UTC()

	if ou, err = svc.repo.UpdateOrgUnit(ctx, ou); err != nil {
		return OrgUnit{}, errors.Wrap(err, "updating org unit")
	}
	return ou, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteOrgUnit(ctx, id); err != nil {
		return errors.Wrap(err, "deleting org unit")
	}
	return nil
}
