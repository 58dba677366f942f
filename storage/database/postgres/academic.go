package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/workflow"
	"github.com/trezcool/academia/storage/database"
)

const baseColumns = "id, org_unit_id, code, name, description, status, created_by, created_at, updated_at"

var (
	entityTables = map[workflow.EntityType]string{
		workflow.EntityCourse:  "courses",
		workflow.EntityProgram: "programs",
		workflow.EntityMajor:   "majors",
		workflow.EntityCohort:  "cohorts",
	}

	// dependentsQueries count the rows preventing the physical deletion of an entity.
	dependentsQueries = map[workflow.EntityType]string{
		workflow.EntityCohort: "SELECT count(*) FROM student_academic_progress WHERE cohort_id = $1",
		workflow.EntityMajor: "SELECT (SELECT count(*) FROM programs WHERE major_id = $1) + " +
			"(SELECT count(*) FROM cohorts WHERE major_id = $1)",
	}
)

type baseRow struct {
	ID          string      `db:"id"`
	OrgUnitID   string      `db:"org_unit_id"`
	Code        string      `db:"code"`
	Name        string      `db:"name"`
	Description string      `db:"description"`
	Status      string      `db:"status"`
	CreatedBy   null.String `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r baseRow) base() academic.Base {
	return academic.Base{
		ID:          r.ID,
		OrgUnitID:   r.OrgUnitID,
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		Status:      academic.Status(r.Status),
		CreatedBy:   r.CreatedBy.Ptr(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func baseArgs(b academic.Base) []interface{} {
	return []interface{}{
		b.ID, b.OrgUnitID, b.Code, b.Name, b.Description, string(b.Status),
		null.StringFromPtr(b.CreatedBy), b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	}
}

type (
	courseRow struct {
		baseRow
		Credits       int `db:"credits"`
		TheoryHours   int `db:"theory_hours"`
		PracticeHours int `db:"practice_hours"`
	}

	majorRow struct {
		baseRow
		DurationYears int `db:"duration_years"`
	}

	programRow struct {
		baseRow
		MajorID       null.String `db:"major_id"`
		DegreeLevel   string      `db:"degree_level"`
		TotalCredits  int         `db:"total_credits"`
		EffectiveFrom null.Time   `db:"effective_from"`
	}

	cohortRow struct {
		baseRow
		MajorID      string    `db:"major_id"`
		AcademicYear string    `db:"academic_year"`
		StartDate    time.Time `db:"start_date"`
		IntakeQuota  int       `db:"intake_quota"`
		StudentCount int       `db:"student_count"`
	}
)

func (r courseRow) course() academic.Course {
	return academic.Course{Base: r.base(), Credits: r.Credits, TheoryHours: r.TheoryHours, PracticeHours: r.PracticeHours}
}

func (r majorRow) major() academic.Major {
	return academic.Major{Base: r.base(), DurationYears: r.DurationYears}
}

func (r programRow) program() academic.Program {
	p := academic.Program{
		Base:         r.base(),
		MajorID:      r.MajorID.Ptr(),
		DegreeLevel:  r.DegreeLevel,
		TotalCredits: r.TotalCredits,
	}
	if r.EffectiveFrom.Valid {
		t := r.EffectiveFrom.Time.UTC()
		p.EffectiveFrom = &t
	}
	return p
}

func (r cohortRow) cohort() academic.Cohort {
	return academic.Cohort{
		Base:         r.base(),
		MajorID:      r.MajorID,
		AcademicYear: r.AcademicYear,
		StartDate:    r.StartDate.UTC(),
		IntakeQuota:  r.IntakeQuota,
		StudentCount: r.StudentCount,
	}
}

const (
	courseColumns  = baseColumns + ", credits, theory_hours, practice_hours"
	majorColumns   = baseColumns + ", duration_years"
	programColumns = baseColumns + ", major_id, degree_level, total_credits, effective_from"
	cohortColumns  = baseColumns + ", major_id, academic_year, start_date, intake_quota"
	cohortSelect   = cohortColumns +
		", (SELECT count(*) FROM student_academic_progress s WHERE s.cohort_id = cohorts.id) AS student_count"
)

type academicRepository struct {
	baseRepository
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *database.DB) academic.Repository {
	return &academicRepository{baseRepository{db: db}}
}

// lock locks the entity row until the end of tx.
func (repo *academicRepository) lock(ctx context.Context, entityType workflow.EntityType, id string, tx []core.DBTransactor) error {
	var locked string
	err := repo.getExec(tx).GetContext(ctx, &locked, "SELECT id FROM "+entityTables[entityType]+" WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return trapNoRowsErr(err, academic.NotFoundError(entityType), "locking "+entityType.Resource())
	}
	return nil
}

func (repo *academicRepository) get(
	ctx context.Context,
	entityType workflow.EntityType,
	dest interface{},
	columns, id string,
	forUpdate bool,
	tx []core.DBTransactor,
) error {
	if _, err := uuid.Parse(id); err != nil {
		return academic.NotFoundError(entityType)
	}
	if forUpdate {
		if err := repo.lock(ctx, entityType, id, tx); err != nil {
			return err
		}
	}
	err := repo.getExec(tx).GetContext(ctx, dest, "SELECT "+columns+" FROM "+entityTables[entityType]+" WHERE id = $1", id)
	if err != nil {
		return trapNoRowsErr(err, academic.NotFoundError(entityType), "getting "+entityType.Resource())
	}
	return nil
}

func (repo *academicRepository) query(
	ctx context.Context,
	entityType workflow.EntityType,
	dest interface{},
	columns string,
	filter academic.QueryFilter,
	ordering []core.DBOrdering,
	tx []core.DBTransactor,
) error {
	var w where
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(code ILIKE ? OR name ILIKE ?)", val, val)
	}
	if filter.OrgUnitID != "" {
		if _, err := uuid.Parse(filter.OrgUnitID); err != nil {
			return nil // no entity can match
		}
		w.add("org_unit_id = ?", filter.OrgUnitID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}

	q := "SELECT " + columns + " FROM " + entityTables[entityType] + w.String() + orderBy(ordering, "code")
	if err := repo.getExec(tx).SelectContext(ctx, dest, q, w.args...); err != nil {
		return errors.Wrapf(err, "querying %ss", entityType.Resource())
	}
	return nil
}

func (repo *academicRepository) updateBase(ctx context.Context, entityType workflow.EntityType, b academic.Base, extra string, args []interface{}, tx []core.DBTransactor) error {
	all := append([]interface{}{b.OrgUnitID, b.Code, b.Name, b.Description, b.UpdatedAt.UTC(), b.ID}, args...)
	q := "UPDATE " + entityTables[entityType] +
		" SET org_unit_id = $1, code = $2, name = $3, description = $4, updated_at = $5" + extra + " WHERE id = $6"
	res, err := repo.getExec(tx).ExecContext(ctx, q, all...)
	if err != nil {
		return database.TranslateError(err, "updating "+entityType.Resource())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.NotFoundError(entityType)
	}
	return nil
}

// Courses

func (repo *academicRepository) CreateCourse(ctx context.Context, c academic.Course, tx ...core.DBTransactor) (academic.Course, error) {
	c.ID = uuid.New().String()
	args := append(baseArgs(c.Base), c.Credits, c.TheoryHours, c.PracticeHours)
	_, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO courses ("+courseColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)", args...)
	if err != nil {
		return academic.Course{}, database.TranslateError(err, "inserting course")
	}
	return c, nil
}

func (repo *academicRepository) GetCourse(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (academic.Course, error) {
	var row courseRow
	if err := repo.get(ctx, workflow.EntityCourse, &row, courseColumns, id, forUpdate, tx); err != nil {
		return academic.Course{}, err
	}
	return row.course(), nil
}

func (repo *academicRepository) QueryCourses(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Course, error) {
	var rows []courseRow
	if err := repo.query(ctx, workflow.EntityCourse, &rows, courseColumns, filter, ordering, tx); err != nil {
		return nil, err
	}
	courses := make([]academic.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo *academicRepository) UpdateCourse(ctx context.Context, c academic.Course, tx ...core.DBTransactor) (academic.Course, error) {
	err := repo.updateBase(ctx, workflow.EntityCourse, c.Base,
		", credits = $7, theory_hours = $8, practice_hours = $9",
		[]interface{}{c.Credits, c.TheoryHours, c.PracticeHours}, tx)
	if err != nil {
		return academic.Course{}, err
	}
	return c, nil
}

// Programs

func (repo *academicRepository) CreateProgram(ctx context.Context, p academic.Program, tx ...core.DBTransactor) (academic.Program, error) {
	p.ID = uuid.New().String()
	args := append(baseArgs(p.Base), null.StringFromPtr(p.MajorID), p.DegreeLevel, p.TotalCredits, null.TimeFromPtr(p.EffectiveFrom))
	_, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO programs ("+programColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)", args...)
	if err != nil {
		return academic.Program{}, database.TranslateError(err, "inserting program")
	}
	return p, nil
}

func (repo *academicRepository) GetProgram(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (academic.Program, error) {
	var row programRow
	if err := repo.get(ctx, workflow.EntityProgram, &row, programColumns, id, forUpdate, tx); err != nil {
		return academic.Program{}, err
	}
	return row.program(), nil
}

func (repo *academicRepository) QueryPrograms(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Program, error) {
	var rows []programRow
	if err := repo.query(ctx, workflow.EntityProgram, &rows, programColumns, filter, ordering, tx); err != nil {
		return nil, err
	}
	programs := make([]academic.Program, 0, len(rows))
	for _, r := range rows {
		programs = append(programs, r.program())
	}
	return programs, nil
}

func (repo *academicRepository) UpdateProgram(ctx context.Context, p academic.Program, tx ...core.DBTransactor) (academic.Program, error) {
	err := repo.updateBase(ctx, workflow.EntityProgram, p.Base,
		", major_id = $7, degree_level = $8, total_credits = $9, effective_from = $10",
		[]interface{}{null.StringFromPtr(p.MajorID), p.DegreeLevel, p.TotalCredits, null.TimeFromPtr(p.EffectiveFrom)}, tx)
	if err != nil {
		return academic.Program{}, err
	}
	return p, nil
}

// Majors

func (repo *academicRepository) CreateMajor(ctx context.Context, m academic.Major, tx ...core.DBTransactor) (academic.Major, error) {
	m.ID = uuid.New().String()
	args := append(baseArgs(m.Base), m.DurationYears)
	_, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO majors ("+majorColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)", args...)
	if err != nil {
		return academic.Major{}, database.TranslateError(err, "inserting major")
	}
	return m, nil
}

func (repo *academicRepository) GetMajor(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (academic.Major, error) {
	var row majorRow
	if err := repo.get(ctx, workflow.EntityMajor, &row, majorColumns, id, forUpdate, tx); err != nil {
		return academic.Major{}, err
	}
	return row.major(), nil
}

func (repo *academicRepository) QueryMajors(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Major, error) {
	var rows []majorRow
	if err := repo.query(ctx, workflow.EntityMajor, &rows, majorColumns, filter, ordering, tx); err != nil {
		return nil, err
	}
	majors := make([]academic.Major, 0, len(rows))
	for _, r := range rows {
		majors = append(majors, r.major())
	}
	return majors, nil
}

func (repo *academicRepository) UpdateMajor(ctx context.Context, m academic.Major, tx ...core.DBTransactor) (academic.Major, error) {
	err := repo.updateBase(ctx, workflow.EntityMajor, m.Base, ", duration_years = $7", []interface{}{m.DurationYears}, tx)
	if err != nil {
		return academic.Major{}, err
	}
	return m, nil
}

// Cohorts

func (repo *academicRepository) CreateCohort(ctx context.Context, c academic.Cohort, tx ...core.DBTransactor) (academic.Cohort, error) {
	c.ID = uuid.New().String()
	args := append(baseArgs(c.Base), c.MajorID, c.AcademicYear, c.StartDate.UTC(), c.IntakeQuota)
	_, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO cohorts ("+cohortColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)", args...)
	if err != nil {
		return academic.Cohort{}, database.TranslateError(err, "inserting cohort")
	}
	return c, nil
}

func (repo *academicRepository) GetCohort(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (academic.Cohort, error) {
	var row cohortRow
	if err := repo.get(ctx, workflow.EntityCohort, &row, cohortSelect, id, forUpdate, tx); err != nil {
		return academic.Cohort{}, err
	}
	return row.cohort(), nil
}

func (repo *academicRepository) QueryCohorts(ctx context.Context, filter academic.QueryFilter, ordering []core.DBOrdering, tx ...core.DBTransactor) ([]academic.Cohort, error) {
	var rows []cohortRow
	if err := repo.query(ctx, workflow.EntityCohort, &rows, cohortSelect, filter, ordering, tx); err != nil {
		return nil, err
	}
	cohorts := make([]academic.Cohort, 0, len(rows))
	for _, r := range rows {
		cohorts = append(cohorts, r.cohort())
	}
	return cohorts, nil
}

func (repo *academicRepository) UpdateCohort(ctx context.Context, c academic.Cohort, tx ...core.DBTransactor) (academic.Cohort, error) {
	err := repo.updateBase(ctx, workflow.EntityCohort, c.Base,
		", major_id = $7, academic_year = $8, start_date = $9, intake_quota = $10",
		[]interface{}{c.MajorID, c.AcademicYear, c.StartDate.UTC(), c.IntakeQuota}, tx)
	if err != nil {
		return academic.Cohort{}, err
	}
	return c, nil
}

// Any entity

func (repo *academicRepository) GetStatus(ctx context.Context, entityType workflow.EntityType, id string, forUpdate bool, tx ...core.DBTransactor) (academic.Status, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return "", errors.Errorf("unknown entity type %q", entityType)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", academic.NotFoundError(entityType)
	}
	var status string
	err := repo.getExec(tx).GetContext(ctx, &status, "SELECT status FROM "+table+" WHERE id = $1"+lockClause(forUpdate), id)
	if err != nil {
		return "", trapNoRowsErr(err, academic.NotFoundError(entityType), "getting "+entityType.Resource()+" status")
	}
	return academic.Status(status), nil
}

func (repo *academicRepository) SetStatus(ctx context.Context, entityType workflow.EntityType, id string, status academic.Status, tx ...core.DBTransactor) error {
	table, ok := entityTables[entityType]
	if !ok {
		return errors.Errorf("unknown entity type %q", entityType)
	}
	res, err := repo.getExec(tx).ExecContext(ctx,
		"UPDATE "+table+" SET status = $1, updated_at = $2 WHERE id = $3", string(status), time.Now().UTC(), id)
	if err != nil {
		return database.TranslateError(err, "setting "+entityType.Resource()+" status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.NotFoundError(entityType)
	}
	return nil
}

func (repo *academicRepository) CountDependents(ctx context.Context, entityType workflow.EntityType, id string, tx ...core.DBTransactor) (int, error) {
	q, ok := dependentsQueries[entityType]
	if !ok {
		return 0, nil
	}
	var n int
	if err := repo.getExec(tx).GetContext(ctx, &n, q, id); err != nil {
		return 0, errors.Wrapf(err, "counting %s dependents", entityType.Resource())
	}
	return n, nil
}

func (repo *academicRepository) DeleteEntity(ctx context.Context, entityType workflow.EntityType, id string, tx ...core.DBTransactor) error {
	table, ok := entityTables[entityType]
	if !ok {
		return errors.Errorf("unknown entity type %q", entityType)
	}
	res, err := repo.getExec(tx).ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return database.TranslateError(err, "deleting "+entityType.Resource())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.NotFoundError(entityType)
	}
	return nil
}
