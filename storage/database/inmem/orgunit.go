package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/storage/database"
)

type orgUnitRepository struct {
	db *DB
}

var _ orgunit.Repository = (*orgUnitRepository)(nil)

func NewOrgUnitRepository(db *DB) orgunit.Repository {
	return &orgUnitRepository{db: db}
}

func (t *tables) checkOrgUnit(ou orgunit.OrgUnit) error {
	for _, other := range t.orgUnits {
		if other.Code == ou.Code && other.ID != ou.ID {
			return database.ConstraintViolation("org_units_code_key")
		}
	}
	if ou.ParentID != nil {
		if _, ok := t.orgUnits[*ou.ParentID]; !ok {
			return database.ConstraintViolation("org_units_parent_id_fkey")
		}
	}
	return nil
}

func (repo *orgUnitRepository) CreateOrgUnit(ctx context.Context, ou orgunit.OrgUnit, tx ...core.DBTransactor) (orgunit.OrgUnit, error) {
	ou.ID = uuid.New().String()
	err := repo.db.write(tx, func(t *tables, _ *history.Context) error {
		if err := t.checkOrgUnit(ou); err != nil {
			return err
		}
		t.orgUnits[ou.ID] = ou
		return nil
	})
	if err != nil {
		return orgunit.OrgUnit{}, err
	}
	return ou, nil
}

func (repo *orgUnitRepository) GetOrgUnit(ctx context.Context, id string, tx ...core.DBTransactor) (orgunit.OrgUnit, error) {
	var ou orgunit.OrgUnit
	err := repo.db.read(tx, func(t *tables) error {
		found, ok := t.orgUnits[id]
		if !ok {
			return orgunit.ErrNotFound
		}
		ou = found
		return nil
	})
	return ou, err
}

func (repo *orgUnitRepository) QueryOrgUnits(
	ctx context.Context,
	filter orgunit.QueryFilter,
	ordering []core.DBOrdering,
	tx ...core.DBTransactor,
) ([]orgunit.OrgUnit, error) {
	var units []orgunit.OrgUnit
	err := repo.db.read(tx, func(t *tables) error {
		search := strings.ToLower(filter.Search)
		units = make([]orgunit.OrgUnit, 0, len(t.orgUnits))
		for _, ou := range t.orgUnits {
			if search != "" && !containsFold(search, ou.Code, ou.Name) {
				continue
			}
			if filter.Type != "" && ou.Type != filter.Type {
				continue
			}
			units = append(units, ou)
		}
		return nil
	})
	sortBy(units, ordering, func(ou orgunit.OrgUnit, field string) string {
		switch field {
		case "name":
			return ou.Name
		case "type":
			return ou.Type
		case "created_at":
			return timeKey(ou.CreatedAt)
		default:
			return ou.Code
		}
	})
	return units, err
}

func (repo *orgUnitRepository) UpdateOrgUnit(ctx context.Context, ou orgunit.OrgUnit, tx ...core.DBTransactor) (orgunit.OrgUnit, error) {
	err := repo.db.write(tx, func(t *tables, _ *history.Context) error {
		if _, ok := t.orgUnits[ou.ID]; !ok {
			return orgunit.ErrNotFound
		}
		if err := t.checkOrgUnit(ou); err != nil {
			return err
		}
		t.orgUnits[ou.ID] = ou
		return nil
	})
	if err != nil {
		return orgunit.OrgUnit{}, err
	}
	return ou, nil
}

func (repo *orgUnitRepository) DeleteOrgUnit(ctx context.Context, id string, tx ...core.DBTransactor) error {
	return repo.db.write(tx, func(t *tables, _ *history.Context) error {
		if _, ok := t.orgUnits[id]; !ok {
			return orgunit.ErrNotFound
		}
		if t.orgUnitReferenced(id) {
			return database.ConstraintViolation(database.StillReferenced)
		}
		delete(t.orgUnits, id)
		return nil
	})
}

func (t *tables) orgUnitReferenced(id string) bool {
	for _, ou := range t.orgUnits {
		if ou.ParentID != nil && *ou.ParentID == id {
			return true
		}
	}
	for _, c := range t.courses {
		if c.OrgUnitID == id {
			return true
		}
	}
	for _, p := range t.programs {
		if p.OrgUnitID == id {
			return true
		}
	}
	for _, m := range t.majors {
		if m.OrgUnitID == id {
			return true
		}
	}
	for _, c := range t.cohorts {
		if c.OrgUnitID == id {
			return true
		}
	}
	return false
}
