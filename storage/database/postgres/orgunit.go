package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/storage/database"
)

const orgUnitColumns = "id, code, name, type, parent_id, created_at, updated_at"

type orgUnitRow struct {
	ID        string      `db:"id"`
	Code      string      `db:"code"`
	Name      string      `db:"name"`
	Type      string      `db:"type"`
	ParentID  null.String `db:"parent_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r orgUnitRow) orgUnit() orgunit.OrgUnit {
	return orgunit.OrgUnit{
		ID:        r.ID,
		Code:      r.Code,
		Name:      r.Name,
		Type:      r.Type,
		ParentID:  r.ParentID.Ptr(),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type orgUnitRepository struct {
	baseRepository
}

var _ orgunit.Repository = (*orgUnitRepository)(nil)

func NewOrgUnitRepository(db *database.DB) orgunit.Repository {
	return &orgUnitRepository{baseRepository{db: db}}
}

func (repo *orgUnitRepository) CreateOrgUnit(ctx context.Context, ou orgunit.OrgUnit, tx ...core.DBTransactor) (orgunit.OrgUnit, error) {
	ou.ID = uuid.New().String()
	_, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO org_units ("+orgUnitColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		ou.ID, ou.Code, ou.Name, ou.Type, null.StringFromPtr(ou.ParentID), ou.CreatedAt.UTC(), ou.UpdatedAt.UTC(),
	)
	if err != nil {
		return orgunit.OrgUnit{}, database.TranslateError(err, "inserting org unit")
	}
	return ou, nil
}

func (repo *orgUnitRepository) GetOrgUnit(ctx context.Context, id string, tx ...core.DBTransactor) (orgunit.OrgUnit, error) {
	if _, err := uuid.Parse(id); err != nil {
		return orgunit.OrgUnit{}, orgunit.ErrNotFound
	}
	var row orgUnitRow
	if err := repo.getExec(tx).GetContext(ctx, &row, "SELECT "+orgUnitColumns+" FROM org_units WHERE id = $1", id); err != nil {
		return orgunit.OrgUnit{}, trapNoRowsErr(err, orgunit.ErrNotFound, "getting org unit")
	}
	return row.orgUnit(), nil
}

func (repo *orgUnitRepository) QueryOrgUnits(
	ctx context.Context,
	filter orgunit.QueryFilter,
	ordering []core.DBOrdering,
	tx ...core.DBTransactor,
) ([]orgunit.OrgUnit, error) {
	var w where
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(code ILIKE ? OR name ILIKE ?)", val, val)
	}
	if filter.Type != "" {
		w.add("type = ?", filter.Type)
	}

	var rows []orgUnitRow
	q := "SELECT " + orgUnitColumns + " FROM org_units" + w.String() + orderBy(ordering, "code")
	if err := repo.getExec(tx).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying org units")
	}
	units := make([]orgunit.OrgUnit, 0, len(rows))
	for _, r := range rows {
		units = append(units, r.orgUnit())
	}
	return units, nil
}

func (repo *orgUnitRepository) UpdateOrgUnit(ctx context.Context, ou orgunit.OrgUnit, tx ...core.DBTransactor) (orgunit.OrgUnit, error) {
	res, err := repo.getExec(tx).ExecContext(ctx,
		"UPDATE org_units SET code = $1, name = $2, type = $3, parent_id = $4, updated_at = $5 WHERE id = $6",
		ou.Code, ou.Name, ou.Type, null.StringFromPtr(ou.ParentID), ou.UpdatedAt.UTC(), ou.ID,
	)
	if err != nil {
		return orgunit.OrgUnit{}, database.TranslateError(err, "updating org unit")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return orgunit.OrgUnit{}, orgunit.ErrNotFound
	}
	return ou, nil
}

func (repo *orgUnitRepository) DeleteOrgUnit(ctx context.Context, id string, tx ...core.DBTransactor) error {
	if _, err := uuid.Parse(id); err != nil {
		return orgunit.ErrNotFound
	}
	res, err := repo.getExec(tx).ExecContext(ctx, "DELETE FROM org_units WHERE id = $1", id)
	if err != nil {
		return database.TranslateError(err, "deleting org unit")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return orgunit.ErrNotFound
	}
	return nil
}
