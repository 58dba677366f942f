package academic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/workflow"
)

func TestProjectStatus_isTotal(t *testing.T) {
	for _, et := range workflow.EntityTypes {
		vocab := VocabularyOf(et)
		for _, st := range workflow.Statuses {
			for _, action := range WorkflowActions {
				got, err := ProjectStatus(et, st, action)
				require.NoError(t, err, "%s %s %s", et, st, action)
				assert.True(t, vocab.Has(got), "%s %s %s -> %s", et, st, action, got)
			}
		}
	}
}

func TestProjectStatus(t *testing.T) {
	tests := []struct {
		name       string
		entityType workflow.EntityType
		wfStatus   workflow.Status
		action     WorkflowAction
		want       Status
	}{
		{name: "course submitted", entityType: workflow.EntityCourse, wfStatus: workflow.StatusPending, action: ActionSubmit, want: StatusSubmitted},
		{name: "program submitted", entityType: workflow.EntityProgram, wfStatus: workflow.StatusPending, action: ActionSubmit, want: StatusReviewing},
		{name: "first stage reviewed", entityType: workflow.EntityCourse, wfStatus: workflow.StatusInProgress, action: ActionReview, want: StatusSubmitted},
		{name: "approved", entityType: workflow.EntityMajor, wfStatus: workflow.StatusCompleted, action: ActionApprove, want: StatusApproved},
		{name: "partially approved", entityType: workflow.EntityCohort, wfStatus: workflow.StatusInProgress, action: ActionApprove, want: StatusApproved},
		{name: "rejected", entityType: workflow.EntityCohort, wfStatus: workflow.StatusRejected, action: ActionReject, want: StatusRejected},
		{name: "returned", entityType: workflow.EntityCourse, wfStatus: workflow.StatusPending, action: ActionReturn, want: StatusDraft},
		{name: "published", entityType: workflow.EntityProgram, wfStatus: workflow.StatusCompleted, action: ActionPublish, want: StatusPublished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProjectStatus(tt.entityType, tt.wfStatus, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ProjectStatus("SYLLABUS", workflow.StatusPending, ActionSubmit)
	assert.Error(t, err)
	_, err = ProjectStatus(workflow.EntityCourse, "ON_HOLD", ActionSubmit)
	assert.Error(t, err)
}

func TestOverrideAction(t *testing.T) {
	tests := []struct {
		entityType workflow.EntityType
		status     Status
		want       workflow.Action
	}{
		{workflow.EntityCourse, StatusDraft, workflow.ActionReturn},
		{workflow.EntityCourse, StatusSubmitted, workflow.ActionReview},
		{workflow.EntityProgram, StatusApproved, workflow.ActionApprove},
		{workflow.EntityMajor, StatusRejected, workflow.ActionReject},
		{workflow.EntityCohort, StatusPublished, workflow.ActionPublish},
		{workflow.EntityProgram, StatusSuspended, workflow.ActionReview},
		{workflow.EntityCohort, StatusClosed, workflow.ActionReview},
		{workflow.EntityCourse, StatusArchived, workflow.ActionReview},
	}
	for _, tt := range tests {
		t.Run(string(tt.entityType)+"/"+string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, OverrideAction(tt.entityType, tt.status))
		})
	}
}

func TestWorkflowAction(t *testing.T) {
	assert.Equal(t, workflow.ActionReview, ActionSubmit.EngineAction())
	assert.Equal(t, workflow.ActionApprove, ActionReview.EngineAction())
	assert.Equal(t, workflow.ActionApprove, ActionPublish.EngineAction())
	assert.True(t, ActionReturn.IsValid())
	assert.False(t, WorkflowAction("escalate").IsValid())
}

func TestVocabulary(t *testing.T) {
	assert.True(t, VocabularyOf(workflow.EntityCourse).Has(StatusSubmitted))
	assert.False(t, VocabularyOf(workflow.EntityCourse).Has(StatusReviewing))
	assert.False(t, VocabularyOf(workflow.EntityCourse).Has(StatusSuspended))
	assert.True(t, VocabularyOf(workflow.EntityProgram).Has(StatusSuspended))
	assert.True(t, VocabularyOf(workflow.EntityCohort).Has(StatusClosed))
	assert.False(t, VocabularyOf(workflow.EntityMajor).Has(StatusClosed))
}
