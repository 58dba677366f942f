package academic

import (
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/workflow"
)

// Status is the denormalized workflow outcome stored on a curriculum entity.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusReviewing Status = "REVIEWING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
	StatusSuspended Status = "SUSPENDED"
	StatusClosed    Status = "CLOSED"
)

// WorkflowAction is the closed set of actions accepted from API callers.
type WorkflowAction string

const (
	ActionSubmit  WorkflowAction = "submit"
	ActionReview  WorkflowAction = "review"
	ActionApprove WorkflowAction = "approve"
	ActionReject  WorkflowAction = "reject"
	ActionReturn  WorkflowAction = "return"
	ActionPublish WorkflowAction = "publish"
)

var WorkflowActions = []WorkflowAction{ActionSubmit, ActionReview, ActionApprove, ActionReject, ActionReturn, ActionPublish}

// engineActions is what each API action asks of the approval engine.
var engineActions = map[WorkflowAction]workflow.Action{
	ActionSubmit:  workflow.ActionReview,
	ActionReview:  workflow.ActionApprove,
	ActionApprove: workflow.ActionApprove,
	ActionReject:  workflow.ActionReject,
	ActionReturn:  workflow.ActionReturn,
	ActionPublish: workflow.ActionApprove,
}

func (a WorkflowAction) IsValid() bool {
	_, ok := engineActions[a]
	return ok
}

func (a WorkflowAction) EngineAction() workflow.Action {
	return engineActions[a]
}

// statusRole is the meaning of an entity status, independent of the entity vocabulary.
type statusRole int

const (
	roleDraft statusRole = iota
	roleInReview
	roleApproved
	roleRejected
	rolePublished
	roleArchived
)

// Vocabulary names the statuses of an entity type.
type Vocabulary struct {
	Draft     Status
	InReview  Status
	Approved  Status
	Rejected  Status
	Published Status
	Archived  Status
	Extra     []Status // statuses only reachable by administrative override
}

func (v Vocabulary) Statuses() []Status {
	all := []Status{v.Draft, v.InReview, v.Approved, v.Rejected, v.Published, v.Archived}
	return append(all, v.Extra...)
}

func (v Vocabulary) Has(s Status) bool {
	for _, st := range v.Statuses() {
		if s == st {
			return true
		}
	}
	return false
}

func (v Vocabulary) status(r statusRole) Status {
	switch r {
	case roleDraft:
		return v.Draft
	case roleInReview:
		return v.InReview
	case roleApproved:
		return v.Approved
	case roleRejected:
		return v.Rejected
	case rolePublished:
		return v.Published
	default:
		return v.Archived
	}
}

var vocabularies = map[workflow.EntityType]Vocabulary{
	workflow.EntityCourse: {
		Draft: StatusDraft, InReview: StatusSubmitted, Approved: StatusApproved,
		Rejected: StatusRejected, Published: StatusPublished, Archived: StatusArchived,
	},
	workflow.EntityProgram: {
		Draft: StatusDraft, InReview: StatusReviewing, Approved: StatusApproved,
		Rejected: StatusRejected, Published: StatusPublished, Archived: StatusArchived,
		Extra: []Status{StatusSuspended},
	},
	workflow.EntityMajor: {
		Draft: StatusDraft, InReview: StatusReviewing, Approved: StatusApproved,
		Rejected: StatusRejected, Published: StatusPublished, Archived: StatusArchived,
		Extra: []Status{StatusSuspended},
	},
	workflow.EntityCohort: {
		Draft: StatusDraft, InReview: StatusReviewing, Approved: StatusApproved,
		Rejected: StatusRejected, Published: StatusPublished, Archived: StatusArchived,
		Extra: []Status{StatusClosed},
	},
}

func VocabularyOf(entityType workflow.EntityType) Vocabulary {
	return vocabularies[entityType]
}

type projectionKey struct {
	status workflow.Status
	action WorkflowAction
}

// projection maps every (workflow status, API action) pair onto the entity status role.
// Some pairs cannot be produced by the engine; they are still listed so that the table stays total.
var projection = map[projectionKey]statusRole{
	{workflow.StatusPending, ActionSubmit}:  roleInReview,
	{workflow.StatusPending, ActionReview}:  roleInReview,
	{workflow.StatusPending, ActionApprove}: roleInReview,
	{workflow.StatusPending, ActionReject}:  roleInReview,
	{workflow.StatusPending, ActionReturn}:  roleDraft,
	{workflow.StatusPending, ActionPublish}: roleInReview,

	{workflow.StatusInProgress, ActionSubmit}:  roleInReview,
	{workflow.StatusInProgress, ActionReview}:  roleInReview,
	{workflow.StatusInProgress, ActionApprove}: roleApproved,
	{workflow.StatusInProgress, ActionReject}:  roleInReview,
	{workflow.StatusInProgress, ActionReturn}:  roleDraft,
	{workflow.StatusInProgress, ActionPublish}: roleApproved,

	{workflow.StatusApproved, ActionSubmit}:  roleApproved,
	{workflow.StatusApproved, ActionReview}:  roleApproved,
	{workflow.StatusApproved, ActionApprove}: roleApproved,
	{workflow.StatusApproved, ActionReject}:  roleApproved,
	{workflow.StatusApproved, ActionReturn}:  roleApproved,
	{workflow.StatusApproved, ActionPublish}: rolePublished,

	{workflow.StatusRejected, ActionSubmit}:  roleRejected,
	{workflow.StatusRejected, ActionReview}:  roleRejected,
	{workflow.StatusRejected, ActionApprove}: roleRejected,
	{workflow.StatusRejected, ActionReject}:  roleRejected,
	{workflow.StatusRejected, ActionReturn}:  roleRejected,
	{workflow.StatusRejected, ActionPublish}: roleRejected,

	{workflow.StatusCompleted, ActionSubmit}:  roleApproved,
	{workflow.StatusCompleted, ActionReview}:  roleApproved,
	{workflow.StatusCompleted, ActionApprove}: roleApproved,
	{workflow.StatusCompleted, ActionReject}:  roleApproved,
	{workflow.StatusCompleted, ActionReturn}:  roleApproved,
	{workflow.StatusCompleted, ActionPublish}: rolePublished,
}

// ProjectStatus returns the entity status after action left the workflow in wfStatus.
func ProjectStatus(entityType workflow.EntityType, wfStatus workflow.Status, action WorkflowAction) (Status, error) {
	vocab, ok := vocabularies[entityType]
	if !ok {
		return "", errors.Errorf("no status vocabulary for entity type %q", entityType)
	}
	r, ok := projection[projectionKey{wfStatus, action}]
	if !ok {
		return "", errors.Errorf("no status projection for workflow status %q and action %q", wfStatus, action)
	}
	return vocab.status(r), nil
}

// OverrideAction is the approval action recorded when status is set directly by an administrator.
func OverrideAction(entityType workflow.EntityType, status Status) workflow.Action {
	vocab := vocabularies[entityType]
	switch status {
	case vocab.Draft:
		return workflow.ActionReturn
	case vocab.Approved:
		return workflow.ActionApprove
	case vocab.Rejected:
		return workflow.ActionReject
	case vocab.Published:
		return workflow.ActionPublish
	default: // in review, archived, suspended, closed
		return workflow.ActionReview
	}
}
