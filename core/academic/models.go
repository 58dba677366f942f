package academic

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/workflow"
)

const (
	DegreeAssociate = "ASSOCIATE"
	DegreeBachelor  = "BACHELOR"
	DegreeMaster    = "MASTER"
	DegreeDoctorate = "DOCTORATE"
)

// Base holds what every curriculum entity has in common.
type Base struct {
	ID          string    `json:"id"`
	OrgUnitID   string    `json:"org_unit_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedBy   *string   `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC

	// hydrated relations
	OrgUnit  *orgunit.OrgUnit   `json:"org_unit,omitempty"`
	Workflow *workflow.Instance `json:"unified_workflow"`
}

type Course struct {
	Base
	Credits       int `json:"credits"`
	TheoryHours   int `json:"theory_hours"`
	PracticeHours int `json:"practice_hours"`
}

type Major struct {
	Base
	DurationYears int `json:"duration_years"`
}

type Program struct {
	Base
	MajorID       *string    `json:"major_id"`
	DegreeLevel   string     `json:"degree_level"`
	TotalCredits  int        `json:"total_credits"`
	EffectiveFrom *time.Time `json:"effective_from"`
}

type Cohort struct {
	Base
	MajorID      string    `json:"major_id"`
	AcademicYear string    `json:"academic_year"`
	StartDate    time.Time `json:"start_date"`
	IntakeQuota  int       `json:"intake_quota"`
	StudentCount int       `json:"student_count"` // computed
}

// WorkflowUpdate is the workflow part of an update request.
// Either a workflow action or a direct status (administrative override) may be given.
type WorkflowUpdate struct {
	Status         *Status         `json:"status"`
	WorkflowAction *WorkflowAction `json:"workflow_action"`
	WorkflowNotes  string          `json:"workflow_notes"`
	Comment        string          `json:"comment"`
}

func (wu WorkflowUpdate) comments() string {
	if wu.WorkflowNotes != "" {
		return wu.WorkflowNotes
	}
	return wu.Comment
}

func (wu WorkflowUpdate) validate(entityType workflow.EntityType) error {
	if wu.WorkflowAction != nil && wu.Status != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "cannot be combined with workflow_action"})
	}
	if wu.WorkflowAction != nil && !wu.WorkflowAction.IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "workflow_action", Error: "unrecognized workflow action"})
	}
	if wu.Status != nil && !VocabularyOf(entityType).Has(*wu.Status) {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "invalid status for " + entityType.Resource()})
	}
	return nil
}

// BaseUpdate lists the optional common fields of an update request.
type BaseUpdate struct {
	OrgUnitID   *string `json:"org_unit_id" validate:"omitempty,uuid"`
	Code        *string `json:"code" validate:"omitempty,max=32,code"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
}

func (bu *BaseUpdate) clean() {
	core.CleanStringPtr(bu.Code)
	core.CleanStringPtr(bu.Name)
	core.CleanStringPtr(bu.Description)
}

func (bu BaseUpdate) changed() bool {
	return bu.OrgUnitID != nil || bu.Code != nil || bu.Name != nil || bu.Description != nil
}

func (bu BaseUpdate) apply(b *Base, now time.Time) {
	if bu.OrgUnitID != nil {
		b.OrgUnitID = *bu.OrgUnitID
	}
	if bu.Code != nil {
		b.Code = *bu.Code
	}
	if bu.Name != nil {
		b.Name = *bu.Name
	}
	if bu.Description != nil {
		b.Description = *bu.Description
	}
	b.UpdatedAt = now
}

// NewBase lists the common fields of a creation request.
type NewBase struct {
	OrgUnitID   string `json:"org_unit_id" validate:"required,uuid"`
	Code        string `json:"code" validate:"required,max=32,code"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=4000"`
}

func (nb *NewBase) clean() {
	nb.Code = core.CleanString(nb.Code)
	nb.Name = core.CleanString(nb.Name)
	nb.Description = core.CleanString(nb.Description)
}

func (nb NewBase) base(createdBy string, now time.Time) Base {
	var by *string
	if createdBy != "" {
		by = &createdBy
	}
	return Base{
		OrgUnitID:   nb.OrgUnitID,
		Code:        nb.Code,
		Name:        nb.Name,
		Description: nb.Description,
		Status:      StatusDraft,
		CreatedBy:   by,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Courses

type NewCourse struct {
	NewBase
	Credits       int `json:"credits" validate:"required,min=1,max=30"`
	TheoryHours   int `json:"theory_hours" validate:"min=0,max=1000"`
	PracticeHours int `json:"practice_hours" validate:"min=0,max=1000"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.clean()
	return validate.Struct(nc)
}

type UpdateCourse struct {
	BaseUpdate
	WorkflowUpdate
	Credits       *int `json:"credits" validate:"omitempty,min=1,max=30"`
	TheoryHours   *int `json:"theory_hours" validate:"omitempty,min=0,max=1000"`
	PracticeHours *int `json:"practice_hours" validate:"omitempty,min=0,max=1000"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.clean()
	if err := validate.Struct(uc); err != nil {
		return err
	}
	return uc.WorkflowUpdate.validate(workflow.EntityCourse)
}

func (uc UpdateCourse) changed() bool {
	return uc.BaseUpdate.changed() || uc.Credits != nil || uc.TheoryHours != nil || uc.PracticeHours != nil
}

func (uc UpdateCourse) apply(c *Course, now time.Time) {
	uc.BaseUpdate.apply(&c.Base, now)
	if uc.Credits != nil {
		c.Credits = *uc.Credits
	}
	if uc.TheoryHours != nil {
		c.TheoryHours = *uc.TheoryHours
	}
	if uc.PracticeHours != nil {
		c.PracticeHours = *uc.PracticeHours
	}
}

// Majors

type NewMajor struct {
	NewBase
	DurationYears int `json:"duration_years" validate:"required,min=1,max=10"`
}

func (nm *NewMajor) Validate(validate *validator.Validate) error {
	nm.clean()
	return validate.Struct(nm)
}

type UpdateMajor struct {
	BaseUpdate
	WorkflowUpdate
	DurationYears *int `json:"duration_years" validate:"omitempty,min=1,max=10"`
}

func (um *UpdateMajor) Validate(validate *validator.Validate) error {
	um.clean()
	if err := validate.Struct(um); err != nil {
		return err
	}
	return um.WorkflowUpdate.validate(workflow.EntityMajor)
}

func (um UpdateMajor) changed() bool {
	return um.BaseUpdate.changed() || um.DurationYears != nil
}

func (um UpdateMajor) apply(m *Major, now time.Time) {
	um.BaseUpdate.apply(&m.Base, now)
	if um.DurationYears != nil {
		m.DurationYears = *um.DurationYears
	}
}

// Programs

type NewProgram struct {
	NewBase
	MajorID       *string    `json:"major_id" validate:"omitempty,uuid"`
	DegreeLevel   string     `json:"degree_level" validate:"required,oneof=ASSOCIATE BACHELOR MASTER DOCTORATE"`
	TotalCredits  int        `json:"total_credits" validate:"required,min=1,max=400"`
	EffectiveFrom *time.Time `json:"effective_from"`
}

func (np *NewProgram) Validate(validate *validator.Validate) error {
	np.clean()
	return validate.Struct(np)
}

type UpdateProgram struct {
	BaseUpdate
	WorkflowUpdate
	MajorID       *string    `json:"major_id" validate:"omitempty,uuid"`
	DegreeLevel   *string    `json:"degree_level" validate:"omitempty,oneof=ASSOCIATE BACHELOR MASTER DOCTORATE"`
	TotalCredits  *int       `json:"total_credits" validate:"omitempty,min=1,max=400"`
	EffectiveFrom *time.Time `json:"effective_from"`
}

func (up *UpdateProgram) Validate(validate *validator.Validate) error {
	up.clean()
	if err := validate.Struct(up); err != nil {
		return err
	}
	return up.WorkflowUpdate.validate(workflow.EntityProgram)
}

func (up UpdateProgram) changed() bool {
	return up.BaseUpdate.changed() || up.MajorID != nil || up.DegreeLevel != nil || up.TotalCredits != nil || up.EffectiveFrom != nil
}

func (up UpdateProgram) apply(p *Program, now time.Time) {
	up.BaseUpdate.apply(&p.Base, now)
	if up.MajorID != nil {
		p.MajorID = up.MajorID
	}
	if up.DegreeLevel != nil {
		p.DegreeLevel = *up.DegreeLevel
	}
	if up.TotalCredits != nil {
		p.TotalCredits = *up.TotalCredits
	}
	if up.EffectiveFrom != nil {
		ef := up.EffectiveFrom.UTC()
		p.EffectiveFrom = &ef
	}
}

// Cohorts

type NewCohort struct {
	NewBase
	MajorID      string    `json:"major_id" validate:"required,uuid"`
	AcademicYear string    `json:"academic_year" validate:"required,len=9"` // e.g. 2024-2025
	StartDate    time.Time `json:"start_date" validate:"required"`
	IntakeQuota  int       `json:"intake_quota" validate:"min=0,max=10000"`
}

func (nc *NewCohort) Validate(validate *validator.Validate) error {
	nc.clean()
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	return validate.Struct(nc)
}

type UpdateCohort struct {
	BaseUpdate
	WorkflowUpdate
	MajorID      *string    `json:"major_id" validate:"omitempty,uuid"`
	AcademicYear *string    `json:"academic_year" validate:"omitempty,len=9"`
	StartDate    *time.Time `json:"start_date"`
	IntakeQuota  *int       `json:"intake_quota" validate:"omitempty,min=0,max=10000"`
}

func (uc *UpdateCohort) Validate(validate *validator.Validate) error {
	uc.clean()
	core.CleanStringPtr(uc.AcademicYear)
	if err := validate.Struct(uc); err != nil {
		return err
	}
	return uc.WorkflowUpdate.validate(workflow.EntityCohort)
}

func (uc UpdateCohort) changed() bool {
	return uc.BaseUpdate.changed() || uc.MajorID != nil || uc.AcademicYear != nil || uc.StartDate != nil || uc.IntakeQuota != nil
}

func (uc UpdateCohort) apply(c *Cohort, now time.Time) {
	uc.BaseUpdate.apply(&c.Base, now)
	if uc.MajorID != nil {
		c.MajorID = *uc.MajorID
	}
	if uc.AcademicYear != nil {
		c.AcademicYear = *uc.AcademicYear
	}
	if uc.StartDate != nil {
		c.StartDate = uc.StartDate.UTC()
	}
	if uc.IntakeQuota != nil {
		c.IntakeQuota = *uc.IntakeQuota
	}
}

// QueryFilter applies AND operation on the given fields.
// Search does a case-insensitive match on the code or the name.
type QueryFilter struct {
	Search    string `query:"search"`
	OrgUnitID string `query:"org_unit_id"`
	Status    string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.OrgUnitID = core.CleanString(qf.OrgUnitID)
	qf.Status = core.CleanString(qf.Status)
}

var orderingFields = []string{"code", "name", "status", "created_at", "updated_at"}
