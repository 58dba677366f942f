package workflow

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

type EntityType string

const (
	EntityCourse  EntityType = "COURSE"
	EntityProgram EntityType = "PROGRAM"
	EntityMajor   EntityType = "MAJOR"
	EntityCohort  EntityType = "COHORT"
)

var EntityTypes = []EntityType{EntityCourse, EntityProgram, EntityMajor, EntityCohort}

// Resource is the permission resource name of the entity type, e.g. "course".
func (t EntityType) Resource() string {
	return strings.ToLower(string(t))
}

func (t EntityType) IsValid() bool {
	for _, et := range EntityTypes {
		if t == et {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusApproved   Status = "APPROVED" // every stage cleared, awaiting publication
	StatusRejected   Status = "REJECTED"
	StatusCompleted  Status = "COMPLETED"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusApproved, StatusRejected, StatusCompleted}

// IsTerminal reports whether no further action may be processed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionReturn  Action = "RETURN"
	ActionReview  Action = "REVIEW"
	ActionPublish Action = "PUBLISH"
)

var Actions = []Action{ActionApprove, ActionReject, ActionReturn, ActionReview, ActionPublish}

func (a Action) IsValid() bool {
	for _, act := range Actions {
		if a == act {
			return true
		}
	}
	return false
}

type Stage struct {
	Name               string `json:"name"`
	RequiredPermission string `json:"required_permission"`
}

// Definition is the ordered list of approval stages an entity type goes through.
type Definition struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Name       string     `json:"name"`
	Stages     []Stage    `json:"stages"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (d Definition) Validate() error {
	if !d.EntityType.IsValid() {
		return errors.Errorf("workflow: definition %q has an unknown entity type %q", d.Name, d.EntityType)
	}
	if len(d.Stages) == 0 {
		return errors.Errorf("workflow: definition %q has no stages", d.Name)
	}
	seen := make(map[string]bool, len(d.Stages))
	for i, st := range d.Stages {
		if st.Name == "" {
			return errors.Errorf("workflow: definition %q stage %d has no name", d.Name, i)
		}
		if seen[st.Name] {
			return errors.Errorf("workflow: definition %q has duplicate stage %q", d.Name, st.Name)
		}
		seen[st.Name] = true
	}
	return nil
}

// StagePermission returns the permission required to act on the given step, if any.
func (d Definition) StagePermission(step int) string {
	if step < 0 || step >= len(d.Stages) {
		return ""
	}
	return d.Stages[step].RequiredPermission
}

type Instance struct {
	ID              string                 `json:"id"`
	EntityType      EntityType             `json:"entity_type"`
	EntityID        string                 `json:"entity_id"`
	DefinitionID    string                 `json:"workflow_definition_id"`
	Status          Status                 `json:"status"`
	CurrentStep     int                    `json:"current_step"`
	InitiatedBy     string                 `json:"initiated_by"`
	InitiatedAt     time.Time              `json:"initiated_at"`
	CompletedAt     *time.Time             `json:"completed_at"`
	Metadata        map[string]interface{} `json:"metadata"`
	Version         int                    `json:"-"`
	ApprovalRecords []ApprovalRecord       `json:"approval_records"`
}

// ApprovalRecord is the append-only log entry of one action taken on an instance.
type ApprovalRecord struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"workflow_instance_id"`
	ApproverID string    `json:"approver_id"`
	Action     Action    `json:"action"`
	Comments   string    `json:"comments"`
	ApprovedAt time.Time `json:"approved_at"`
}

// NewInstance contains information needed to start a workflow for an entity.
type NewInstance struct {
	EntityType  EntityType
	EntityID    string
	InitiatedBy string
	Metadata    map[string]interface{}
}
