package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	// StillReferenced names the violation raised when deleting a referenced row.
	StillReferenced = "still_referenced"
)

// constraintMessages are the user-facing messages of the named database constraints.
var constraintMessages = map[string]core.ConstraintViolationError{
	"org_units_code_key":           {Field: "code", Message: "an org unit with this code already exists"},
	"org_units_parent_id_fkey":     {Field: "parent_id", Message: "invalid or referenced parent org unit"},
	"courses_org_unit_code_key":    {Field: "code", Message: "a course with this code already exists in the org unit"},
	"programs_org_unit_code_key":   {Field: "code", Message: "a program with this code already exists in the org unit"},
	"majors_org_unit_code_key":     {Field: "code", Message: "a major with this code already exists in the org unit"},
	"cohorts_org_unit_code_key":    {Field: "code", Message: "a cohort with this code already exists in the org unit"},
	"courses_org_unit_id_fkey":     {Field: "org_unit_id", Message: "invalid org unit"},
	"programs_org_unit_id_fkey":    {Field: "org_unit_id", Message: "invalid org unit"},
	"majors_org_unit_id_fkey":      {Field: "org_unit_id", Message: "invalid org unit"},
	"cohorts_org_unit_id_fkey":     {Field: "org_unit_id", Message: "invalid org unit"},
	"programs_major_id_fkey":       {Field: "major_id", Message: "invalid major"},
	"cohorts_major_id_fkey":        {Field: "major_id", Message: "invalid major"},
	"users_username_key":           {Field: "username", Message: "a user with this username already exists"},
	"student_progress_cohort_fkey": {Field: "cohort_id", Message: "invalid cohort"},
	StillReferenced:                {Message: "the record is still referenced by other records"},
}

// TranslateError turns unique and foreign-key violations into core.ConstraintViolationError.
// Other errors are wrapped with msg.
func TranslateError(err error, msg string) error {
	if err == nil {
		return nil
	}
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok {
		return errors.Wrap(err, msg)
	}

	switch pqErr.Code {
	case uniqueViolation, foreignKeyViolation:
		cv, known := constraintMessages[pqErr.Constraint]
		switch {
		case isStillReferenced(pqErr):
			cv = constraintMessages[StillReferenced]
		case !known && pqErr.Code == uniqueViolation:
			cv = core.ConstraintViolationError{Message: "a record with the same values already exists"}
		case !known:
			cv = core.ConstraintViolationError{Message: "a referenced record does not exist"}
		}
		cv.Constraint = pqErr.Constraint
		return &cv
	}
	return errors.Wrap(err, msg)
}

// isStillReferenced reports whether a foreign-key violation was raised by deleting a referenced row.
func isStillReferenced(pqErr *pq.Error) bool {
	return pqErr.Code == foreignKeyViolation && strings.Contains(pqErr.Detail, "still referenced")
}

// ConstraintViolation returns the violation error of a named constraint.
// It lets other stores report violations the way PostgreSQL does.
func ConstraintViolation(constraint string) error {
	cv, known := constraintMessages[constraint]
	if !known {
		cv = core.ConstraintViolationError{Message: "constraint " + constraint + " violated"}
	}
	cv.Constraint = constraint
	return &cv
}
