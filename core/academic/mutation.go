package academic

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/core/workflow"
)

// mutation describes an update of a curriculum entity.
type mutation struct {
	entityType workflow.EntityType
	id         string
	update     WorkflowUpdate
	fields     bool // whether entity fields are changed
	// apply locks the entity row, updates its fields and returns the (updated) entity.
	apply func(tx core.DBTransactor) (Base, error)
}

// outcome is what a committed mutation did to the entity workflow.
type outcome struct {
	entity   Base
	instance *workflow.Instance
	action   string // API action, or the status keyword of an override
	status   Status // entity status after the mutation
}

func (o outcome) notifiable() bool {
	if o.instance == nil {
		return false
	}
	return o.instance.Status.IsTerminal() || o.action == string(ActionPublish)
}

func (svc *service) authorizeMutation(caller Caller, m mutation) error {
	if err := svc.authorize(caller, m.entityType, user.VerbUpdate); err != nil {
		return err
	}
	switch {
	case m.update.WorkflowAction != nil:
		return svc.authorize(caller, m.entityType, string(*m.update.WorkflowAction))
	case m.update.Status != nil:
		return svc.authorize(caller, m.entityType, user.VerbStatus)
	}
	return nil
}

func (svc *service) mutate(ctx context.Context, caller Caller, m mutation) error {
	if err := svc.authorizeMutation(caller, m); err != nil {
		return err
	}

	metadata := map[string]interface{}{
		"entity_type": string(m.entityType),
		"entity_id":   m.id,
	}
	if m.update.Status != nil {
		metadata["target_status"] = string(*m.update.Status)
	}
	if m.update.WorkflowAction != nil {
		metadata["workflow_action"] = string(*m.update.WorkflowAction)
	}
	actor := svc.history.GetActorInfo(ctx, caller.User.ID)
	hc := history.NewContext(actor, caller.Request, metadata)

	var out outcome
	err := svc.history.RunInTx(ctx, hc, func(tx core.DBTransactor) error {
		base, err := m.apply(tx)
		if err != nil {
			return err
		}
		out.entity = base
		out.status = base.Status

		switch {
		case m.update.WorkflowAction != nil:
			return svc.processAction(ctx, tx, caller, m, &out)
		case m.update.Status != nil:
			return svc.overrideStatus(ctx, tx, caller, m, &out)
		}
		return nil
	})
	if err != nil {
		return err
	}

	svc.afterCommit(ctx, m, out)
	return nil
}

// processAction runs a workflow action through the approval engine and projects its result on the entity status.
func (svc *service) processAction(ctx context.Context, tx core.DBTransactor, caller Caller, m mutation, out *outcome) error {
	action := *m.update.WorkflowAction
	vocab := VocabularyOf(m.entityType)
	current := out.entity.Status

	var (
		inst *workflow.Instance
		err  error
	)
	switch action {
	case ActionSubmit:
		if current != vocab.Draft && current != vocab.Rejected {
			return core.NewValidationError(nil, core.FieldError{
				Field: "workflow_action",
				Error: fmt.Sprintf("only %s or %s %ss can be submitted", vocab.Draft, vocab.Rejected, m.entityType.Resource()),
			})
		}
		// a terminal instance is kept for audit and a new one is started
		var started workflow.Instance
		if started, _, err = svc.workflows.GetOrCreate(ctx, svc.newInstance(caller, m, out.entity), tx); err == nil {
			inst = &started
		}
	default:
		if action == ActionPublish && current != vocab.Approved {
			return core.NewValidationError(nil, core.FieldError{
				Field: "workflow_action",
				Error: fmt.Sprintf("only %s %ss can be published", vocab.Approved, m.entityType.Resource()),
			})
		}
		inst, err = svc.currentOrNewInstance(ctx, tx, caller, m, out.entity)
	}
	if errors.Cause(err) == workflow.ErrNoDefinition || (err == nil && inst == nil) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "workflow_action",
			Error: fmt.Sprintf("%ss have no active approval workflow, set their status instead", m.entityType.Resource()),
		})
	}
	if err != nil {
		return err
	}

	req := workflow.ActionRequest{Action: action.EngineAction(), Approver: caller.User, Comments: m.update.comments()}
	processed, err := svc.workflows.ProcessAction(ctx, inst.ID, req, tx)
	switch {
	case err == nil:
	case action == ActionPublish && errors.Cause(err) == workflow.ErrAlreadyTerminal && processed.Status == workflow.StatusCompleted:
		// approval already completed: publishing is only recorded
	default:
		return err
	}
	if action == ActionPublish && processed.Status == workflow.StatusCompleted {
		if _, err = svc.workflows.RecordManual(ctx, processed, caller.User.ID, workflow.ActionPublish, m.update.comments(), tx); err != nil {
			return err
		}
	}

	status, err := ProjectStatus(m.entityType, processed.Status, action)
	if err != nil {
		return err
	}
	if status != current {
		if err = svc.repo.SetStatus(ctx, m.entityType, m.id, status, tx); err != nil {
			return errors.Wrap(err, "setting entity status")
		}
	}

	out.instance = &processed
	out.action = string(action)
	out.status = status
	return nil
}

// overrideStatus sets the entity status directly, recording the change on its current workflow if it has one.
func (svc *service) overrideStatus(ctx context.Context, tx core.DBTransactor, caller Caller, m mutation, out *outcome) error {
	target := *m.update.Status
	if target == out.entity.Status {
		return nil
	}

	inst, err := svc.currentOrNewInstance(ctx, tx, caller, m, out.entity)
	if err != nil {
		return err
	}
	if inst != nil {
		action := OverrideAction(m.entityType, target)
		if _, err = svc.workflows.RecordManual(ctx, *inst, caller.User.ID, action, m.update.comments(), tx); err != nil {
			return err
		}
	}
	if err = svc.repo.SetStatus(ctx, m.entityType, m.id, target, tx); err != nil {
		return errors.Wrap(err, "setting entity status")
	}

	out.instance = inst
	out.action = string(target)
	out.status = target
	return nil
}

// currentOrNewInstance returns the locked current workflow of the entity, terminal or not,
// starting one when the entity has none. It returns nil when the entity has no workflow
// and its type has no active definition.
func (svc *service) currentOrNewInstance(ctx context.Context, tx core.DBTransactor, caller Caller, m mutation, b Base) (*workflow.Instance, error) {
	inst, err := svc.workflows.LockCurrent(ctx, m.entityType, m.id, tx)
	if err != nil || inst != nil {
		return inst, err
	}
	def, err := svc.workflows.FindActiveDefinition(ctx, m.entityType, tx)
	if err != nil {
		return nil, errors.Wrap(err, "finding active workflow definition")
	}
	if def == nil {
		return nil, nil
	}
	created, _, err := svc.workflows.GetOrCreate(ctx, svc.newInstance(caller, m, b), tx)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (svc *service) newInstance(caller Caller, m mutation, b Base) workflow.NewInstance {
	return workflow.NewInstance{
		EntityType:  m.entityType,
		EntityID:    m.id,
		InitiatedBy: caller.User.ID,
		Metadata: map[string]interface{}{
			m.entityType.Resource() + "_id": m.id,
			"code":                          b.Code,
		},
	}
}

func (svc *service) afterCommit(ctx context.Context, m mutation, out outcome) {
	if m.fields || out.status != out.entity.Status {
		svc.metrics.EntityMutated(string(m.entityType), "update")
	}
	if out.instance == nil {
		return
	}
	svc.metrics.WorkflowActionProcessed(string(m.entityType), out.action, string(out.instance.Status))

	if out.notifiable() {
		svc.notifyInitiator(ctx, m, out)
	}
}

// notifyInitiator emails the outcome of a workflow to the user who started it. Failures are only logged.
func (svc *service) notifyInitiator(ctx context.Context, m mutation, out outcome) {
	if svc.mailSvc == nil || out.instance.InitiatedBy == "" {
		return
	}
	initiator, err := svc.users.GetByID(ctx, out.instance.InitiatedBy)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("looking up workflow initiator %s: %v", out.instance.InitiatedBy, err), err)
		return
	}
	if initiator.Email == "" {
		return
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: initiator.DisplayName(), Address: initiator.Email}},
		Subject:      fmt.Sprintf("[%s] %s %s is %s", svc.appName, m.entityType.Resource(), out.entity.Code, out.status),
		TemplateName: "workflow_outcome",
		TemplateData: map[string]interface{}{
			"AppName":       svc.appName,
			"RecipientName": initiator.DisplayName(),
			"EntityType":    m.entityType.Resource(),
			"EntityCode":    out.entity.Code,
			"EntityName":    out.entity.Name,
			"Status":        string(out.status),
			"Action":        out.action,
			"Comments":      m.update.comments(),
		},
	}
	svc.mailSvc.SendMessages(msg)
}

// Delete physically deletes draft entities without dependents and archives the others.
func (svc *service) Delete(ctx context.Context, caller Caller, entityType workflow.EntityType, id string) error {
	if !entityType.IsValid() {
		return errors.Errorf("unknown entity type %q", entityType)
	}
	if err := svc.authorize(caller, entityType, user.VerbDelete); err != nil {
		return err
	}

	actor := svc.history.GetActorInfo(ctx, caller.User.ID)
	hc := history.NewContext(actor, caller.Request, map[string]interface{}{
		"entity_type": string(entityType),
		"entity_id":   id,
		"operation":   "delete",
	})
	vocab := VocabularyOf(entityType)

	var operation string
	err := svc.history.RunInTx(ctx, hc, func(tx core.DBTransactor) error {
		status, err := svc.repo.GetStatus(ctx, entityType, id, true, tx)
		if err != nil {
			return err
		}

		switch status {
		case vocab.Archived:
			return nil
		case vocab.Draft:
			n, err := svc.repo.CountDependents(ctx, entityType, id, tx)
			if err != nil {
				return errors.Wrap(err, "counting dependents")
			}
			if n > 0 {
				return core.NewValidationError(errors.Errorf("cannot delete %s: %d dependent record(s) exist", entityType.Resource(), n))
			}
			operation = "delete"
			return errors.Wrap(svc.repo.DeleteEntity(ctx, entityType, id, tx), "deleting entity")
		}

		m := mutation{entityType: entityType, id: id}
		inst, err := svc.currentOrNewInstance(ctx, tx, caller, m, Base{ID: id})
		if err != nil {
			return err
		}
		if inst != nil {
			action := OverrideAction(entityType, vocab.Archived)
			if _, err = svc.workflows.RecordManual(ctx, *inst, caller.User.ID, action, "archived on deletion", tx); err != nil {
				return err
			}
		}
		operation = "archive"
		return errors.Wrap(svc.repo.SetStatus(ctx, entityType, id, vocab.Archived, tx), "archiving entity")
	})
	if err != nil {
		return err
	}
	if operation != "" {
		svc.metrics.EntityMutated(string(entityType), operation)
	}
	return nil
}
