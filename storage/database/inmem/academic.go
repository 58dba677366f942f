package inmemdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/workflow"
	"github.com/trezcool/academia/storage/database"
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

var constraintPrefixes = map[workflow.EntityType]string{
	workflow.EntityCourse:  "courses",
	workflow.EntityProgram: "programs",
	workflow.EntityMajor:   "majors",
	workflow.EntityCohort:  "cohorts",
}

// bases returns the base of every entity of the type.
func (t *tables) bases(entityType workflow.EntityType) []academic.Base {
	var all []academic.Base
	switch entityType {
	case workflow.EntityCourse:
		for _, c := range t.courses {
			all = append(all, c.Base)
		}
	case workflow.EntityProgram:
		for _, p := range t.programs {
			all = append(all, p.Base)
		}
	case workflow.EntityMajor:
		for _, m := range t.majors {
			all = append(all, m.Base)
		}
	case workflow.EntityCohort:
		for _, c := range t.cohorts {
			all = append(all, c.Base)
		}
	}
	return all
}

// checkBase enforces the unique code per org unit and the org unit foreign key.
func (t *tables) checkBase(entityType workflow.EntityType, b academic.Base) error {
	prefix := constraintPrefixes[entityType]
	if _, ok := t.orgUnits[b.OrgUnitID]; !ok {
		return database.ConstraintViolation(prefix + "_org_unit_id_fkey")
	}
	for _, other := range t.bases(entityType) {
		if other.OrgUnitID == b.OrgUnitID && other.Code == b.Code && other.ID != b.ID {
			return database.ConstraintViolation(prefix + "_org_unit_code_key")
		}
	}
	return nil
}

func (t *tables) checkMajor(entityType workflow.EntityType, majorID *string) error {
	if majorID == nil {
		return nil
	}
	if _, ok := t.majors[*majorID]; !ok {
		return database.ConstraintViolation(constraintPrefixes[entityType] + "_major_id_fkey")
	}
	return nil
}

func (t *tables) studentCount(cohortID string) int {
	n := 0
	for _, cid := range t.students {
		if cid == cohortID {
			n++
		}
	}
	return n
}

func stored(b academic.Base) academic.Base {
	b.OrgUnit = nil
	b.Workflow = nil
	return b
}

func matches(b academic.Base, filter academic.QueryFilter) bool {
	if filter.Search != "" && !containsFold(strings.ToLower(filter.Search), b.Code, b.Name) {
		return false
	}
	if filter.OrgUnitID != "" && b.OrgUnitID != filter.OrgUnitID {
		return false
	}
	if filter.Status != "" && string(b.Status) != filter.Status {
		return false
	}
	return true
}

func baseKey(b academic.Base, field string) string {
	switch field {
	case "name":
		return b.Name
	case "status":
		return string(b.Status)
	case "created_at":
		return timeKey(b.CreatedAt)
	case "updated_at":
		return timeKey(b.UpdatedAt)
	default:
		return b.Code
	}
}

func intKey(n int) string {
	return fmt.Sprintf("%012d", n)
}

// Courses

func (repo *academicRepository) CreateCourse(ctx context.Context, c academic.Course, tx ...core.DBTransactor) (academic.Course, error) {
	c.ID = uuid.New().String()
	c.Base = stored(c.Base)
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		if err := t.checkBase(workflow.EntityCourse, c.Base); err != nil {
			return err
		}
		t.courses[c.ID] = c
		t.recordHistory(hc, workflow.EntityCourse, c.ID, nil, c)
		return nil
	})
	if err != nil {
		return academic.Course{}, err
	}
	return c, nil
}

func (repo *academicRepository) GetCourse(ctx context.Context, id string, _ bool, tx ...core.DBTransactor) (academic.Course, error) {
	var c academic.Course
	err := repo.db.read(tx, func(t *tables) error {
		found, ok := t.courses[id]
		if !ok {
			return academic.ErrCourseNotFound
		}
		c = found
		return nil
	})
	return c, err
}

func (repo *academicRepository) QueryCourses(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Course, error) {
	courses := make([]academic.Course, 0)
	err := repo.db.read(tx, func(t *tables) error {
		for _, c := range t.courses {
			if matches(c.Base, filter) {
				courses = append(courses, c)
			}
		}
		return nil
	})
	sortBy(courses, ordering, func(c academic.Course, field string) string {
		if field == "credits" {
			return intKey(c.Credits)
		}
		return baseKey(c.Base, field)
	})
	return courses, err
}

func (repo *academicRepository) UpdateCourse(ctx context.Context, c academic.Course, tx ...core.DBTransactor) (academic.Course, error) {
	c.Base = stored(c.Base)
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		old, ok := t.courses[c.ID]
		if !ok {
			return academic.ErrCourseNotFound
		}
		if err := t.checkBase(workflow.EntityCourse, c.Base); err != nil {
			return err
		}
		c.Status = old.Status
		t.courses[c.ID] = c
		t.recordHistory(hc, workflow.EntityCourse, c.ID, old, c)
		return nil
	})
	if err != nil {
		return academic.Course{}, err
	}
	return c, nil
}

// Programs

func (repo *academicRepository) CreateProgram(ctx context.Context, p academic.Program, tx ...core.DBTransactor) (academic.Program, error) {
	p.ID = uuid.New().String()
	p.Base = stored(p.Base)
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		if err := t.checkBase(workflow.EntityProgram, p.Base); err != nil {
			return err
		}
		if err := t.checkMajor(workflow.EntityProgram, p.MajorID); err != nil {
			return err
		}
		t.programs[p.ID] = p
		t.recordHistory(hc, workflow.EntityProgram, p.ID, nil, p)
		return nil
	})
	if err != nil {
		return academic.Program{}, err
	}
	return p, nil
}

func (repo *academicRepository) GetProgram(ctx context.Context, id string, _ bool, tx ...core.DBTransactor) (academic.Program, error) {
	var p academic.Program
	err := repo.db.read(tx, func(t *tables) error {
		found, ok := t.programs[id]
		if !ok {
			return academic.ErrProgramNotFound
		}
		p = found
		return nil
	})
	return p, err
}

func (repo *academicRepository) QueryPrograms(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Program, error) {
	programs := make([]academic.Program, 0)
	err := repo.db.read(tx, func(t *tables) error {
		for _, p := range t.programs {
			if matches(p.Base, filter) {
				programs = append(programs, p)
			}
		}
		return nil
	})
	sortBy(programs, ordering, func(p academic.Program, field string) string {
		if field == "degree_level" {
			return p.DegreeLevel
		}
		return baseKey(p.Base, field)
	})
	return programs, err
}

func (repo *academicRepository) UpdateProgram(ctx context.Context, p academic.Program, tx ...core.DBTransactor) (academic.Program, error) {
	p.Base = stored(p.Base)
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		old, ok := t.programs[p.ID]
		if !ok {
			return academic.ErrProgramNotFound
		}
		if err := t.checkBase(workflow.EntityProgram, p.Base); err != nil {
			return err
		}
		if err := t.checkMajor(workflow.EntityProgram, p.MajorID); err != nil {
			return err
		}
		p.Status = old.Status
		t.programs[p.ID] = p
		t.recordHistory(hc, workflow.EntityProgram, p.ID, old, p)
		return nil
	})
	if err != nil {
		return academic.Program{}, err
	}
	return p, nil
}

// Majors

func (repo *academicRepository) CreateMajor(ctx context.Context, m academic.Major, tx ...core.DBTransactor) (academic.Major, error) {
	m.ID = uuid.New().String()
	m.Base = stored(m.Base)
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		if err := t.checkBase(workflow.EntityMajor, m.Base); err != nil {
			return err
		}
		t.majors[m.ID] = m
		t.recordHistory(hc, workflow.EntityMajor, m.ID, nil, m)
		return nil
	})
	if err != nil {
		return academic.Major{}, err
	}
	return m, nil
}

func (repo *academicRepository) GetMajor(ctx context.Context, id string, _ bool, tx ...core.DBTransactor) (academic.Major, error) {
	var m academic.Major
	err := repo.db.read(tx, func(t *tables) error {
		found, ok := t.majors[id]
		if !ok {
			return academic.ErrMajorNotFound
		}
		m = found
		return nil
	})
	return m, err
}

func (repo *academicRepository) QueryMajors(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Major, error) {
	majors := make([]academic.Major, 0)
	err := repo.db.read(tx, func(t *tables) error {
		for _, m := range t.majors {
			if matches(m.Base, filter) {
				majors = append(majors, m)
			}
		}
		return nil
	})
	sortBy(majors, ordering, func(m academic.Major, field string) string { return baseKey(m.Base, field) })
	return majors, err
}

func (repo *academicRepository) UpdateMajor(ctx context.Context, m academic.Major, tx ...core.DBTransactor) (academic.Major, error) {
	m.Base = stored(m.Base)
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		old, ok := t.majors[m.ID]
		if !ok {
			return academic.ErrMajorNotFound
		}
		if err := t.checkBase(workflow.EntityMajor, m.Base); err != nil {
			return err
		}
		m.Status = old.Status
		t.majors[m.ID] = m
		t.recordHistory(hc, workflow.EntityMajor, m.ID, old, m)
		return nil
	})
	if err != nil {
		return academic.Major{}, err
	}
	return m, nil
}

// Cohorts

func (repo *academicRepository) CreateCohort(ctx context.Context, c academic.Cohort, tx ...core.DBTransactor) (academic.Cohort, error) {
	c.ID = uuid.New().String()
	c.Base = stored(c.Base)
	c.StudentCount = 0
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		if err := t.checkBase(workflow.EntityCohort, c.Base); err != nil {
			return err
		}
		if err := t.checkMajor(workflow.EntityCohort, &c.MajorID); err != nil {
			return err
		}
		t.cohorts[c.ID] = c
		t.recordHistory(hc, workflow.EntityCohort, c.ID, nil, c)
		return nil
	})
	if err != nil {
		return academic.Cohort{}, err
	}
	return c, nil
}

func (repo *academicRepository) GetCohort(ctx context.Context, id string, _ bool, tx ...core.DBTransactor) (academic.Cohort, error) {
	var c academic.Cohort
	err := repo.db.read(tx, func(t *tables) error {
		found, ok := t.cohorts[id]
		if !ok {
			return academic.ErrCohortNotFound
		}
		c = found
		c.StudentCount = t.studentCount(id)
		return nil
	})
	return c, err
}

func (repo *academicRepository) QueryCohorts(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Cohort, error) {
	cohorts := make([]academic.Cohort, 0)
	err := repo.db.read(tx, func(t *tables) error {
		for _, c := range t.cohorts {
			if matches(c.Base, filter) {
				c.StudentCount = t.studentCount(c.ID)
				cohorts = append(cohorts, c)
			}
		}
		return nil
	})
	sortBy(cohorts, ordering, func(c academic.Cohort, field string) string {
		switch field {
		case "academic_year":
			return c.AcademicYear
		case "start_date":
			return timeKey(c.StartDate)
		}
		return baseKey(c.Base, field)
	})
	return cohorts, err
}

func (repo *academicRepository) UpdateCohort(ctx context.Context, c academic.Cohort, tx ...core.DBTransactor) (academic.Cohort, error) {
	c.Base = stored(c.Base)
	c.StudentCount = 0
	err := repo.db.write(tx, func(t *tables, hc *history.Context) error {
		old, ok := t.cohorts[c.ID]
		if !ok {
			return academic.ErrCohortNotFound
		}
		if err := t.checkBase(workflow.EntityCohort, c.Base); err != nil {
			return err
		}
		if err := t.checkMajor(workflow.EntityCohort, &c.MajorID); err != nil {
			return err
		}
		c.Status = old.Status
		t.cohorts[c.ID] = c
		t.recordHistory(hc, workflow.EntityCohort, c.ID, old, c)
		return nil
	})
	if err != nil {
		return academic.Cohort{}, err
	}
	return c, nil
}

// Any entity

func (repo *academicRepository) GetStatus(ctx context.Context, entityType workflow.EntityType, id string, _ bool, tx ...core.DBTransactor) (academic.Status, error) {
	var status academic.Status
	err := repo.db.read(tx, func(t *tables) error {
		for _, b := range t.bases(entityType) {
			if b.ID == id {
				status = b.Status
				return nil
			}
		}
		return academic.NotFoundError(entityType)
	})
	return status, err
}

func (repo *academicRepository) SetStatus(ctx context.Context, entityType workflow.EntityType, id string, status academic.Status, tx ...core.DBTransactor) error {
	now := time.Now().UTC()
	return repo.db.write(tx, func(t *tables, hc *history.Context) error {
		switch entityType {
		case workflow.EntityCourse:
			old, ok := t.courses[id]
			if !ok {
				return academic.ErrCourseNotFound
			}
			c := old
			c.Status, c.UpdatedAt = status, now
			t.courses[id] = c
			t.recordHistory(hc, entityType, id, old, c)
		case workflow.EntityProgram:
			old, ok := t.programs[id]
			if !ok {
				return academic.ErrProgramNotFound
			}
			p := old
			p.Status, p.UpdatedAt = status, now
			t.programs[id] = p
			t.recordHistory(hc, entityType, id, old, p)
		case workflow.EntityMajor:
			old, ok := t.majors[id]
			if !ok {
				return academic.ErrMajorNotFound
			}
			m := old
			m.Status, m.UpdatedAt = status, now
			t.majors[id] = m
			t.recordHistory(hc, entityType, id, old, m)
		case workflow.EntityCohort:
			old, ok := t.cohorts[id]
			if !ok {
				return academic.ErrCohortNotFound
			}
			c := old
			c.Status, c.UpdatedAt = status, now
			t.cohorts[id] = c
			t.recordHistory(hc, entityType, id, old, c)
		default:
			return errors.Errorf("unknown entity type %q", entityType)
		}
		return nil
	})
}

func (repo *academicRepository) CountDependents(ctx context.Context, entityType workflow.EntityType, id string, tx ...core.DBTransactor) (int, error) {
	n := 0
	err := repo.db.read(tx, func(t *tables) error {
		switch entityType {
		case workflow.EntityCohort:
			n = t.studentCount(id)
		case workflow.EntityMajor:
			for _, p := range t.programs {
				if p.MajorID != nil && *p.MajorID == id {
					n++
				}
			}
			for _, c := range t.cohorts {
				if c.MajorID == id {
					n++
				}
			}
		}
		return nil
	})
	return n, err
}

func (repo *academicRepository) DeleteEntity(ctx context.Context, entityType workflow.EntityType, id string, tx ...core.DBTransactor) error {
	return repo.db.write(tx, func(t *tables, hc *history.Context) error {
		var old interface{}
		switch entityType {
		case workflow.EntityCourse:
			c, ok := t.courses[id]
			if !ok {
				return academic.ErrCourseNotFound
			}
			old = c
			delete(t.courses, id)
		case workflow.EntityProgram:
			p, ok := t.programs[id]
			if !ok {
				return academic.ErrProgramNotFound
			}
			old = p
			delete(t.programs, id)
		case workflow.EntityMajor:
			m, ok := t.majors[id]
			if !ok {
				return academic.ErrMajorNotFound
			}
			old = m
			delete(t.majors, id)
		case workflow.EntityCohort:
			c, ok := t.cohorts[id]
			if !ok {
				return academic.ErrCohortNotFound
			}
			if t.studentCount(id) > 0 {
				return database.ConstraintViolation(database.StillReferenced)
			}
			old = c
			delete(t.cohorts, id)
		default:
			return errors.Errorf("unknown entity type %q", entityType)
		}
		t.recordHistory(hc, entityType, id, old, nil)
		return nil
	})
}
