package workflow

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	// errors
	ErrDefinitionNotFound   = core.NewNotFoundError("workflow definition")
	ErrInstanceNotFound     = core.NewNotFoundError("workflow instance")
	ErrNoDefinition         = core.NewValidationError(errors.New("no active workflow definition for this entity type"))
	ErrAlreadyTerminal      = core.NewValidationError(errors.New("workflow has already reached a terminal state"))
	ErrInvalidAction        = core.NewValidationError(errors.New("invalid workflow action"))
	ErrActiveInstanceExists = core.NewConflictError("entity already has an active workflow")
	ErrConcurrentUpdate     = core.NewConflictError("workflow was modified concurrently, please retry")
)

type (
	Repository interface {
		GetActiveDefinition(ctx context.Context, entityType EntityType, tx ...core.DBTransactor) (Definition, error)
		GetDefinition(ctx context.Context, id string, tx ...core.DBTransactor) (Definition, error)
		QueryActiveDefinitions(ctx context.Context, tx ...core.DBTransactor) ([]Definition, error)
		// GetInstanceByEntity returns the active instance of the entity if any, its most recent one otherwise.
		// The row is locked until the end of tx when forUpdate is set.
		GetInstanceByEntity(ctx context.Context, entityType EntityType, entityID string, forUpdate bool, tx ...core.DBTransactor) (Instance, error)
		GetInstance(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (Instance, error)
		// CreateInstance fails with ErrActiveInstanceExists when the entity already has an active instance.
		CreateInstance(ctx context.Context, inst Instance, tx ...core.DBTransactor) (Instance, error)
		// UpdateInstance fails with ErrConcurrentUpdate when inst.Version is stale. It bumps the version.
		UpdateInstance(ctx context.Context, inst Instance, tx ...core.DBTransactor) (Instance, error)
		CreateApprovalRecord(ctx context.Context, rec ApprovalRecord, tx ...core.DBTransactor) (ApprovalRecord, error)
		// QueryApprovalRecords returns the records of an instance, oldest first.
		QueryApprovalRecords(ctx context.Context, instanceID string, tx ...core.DBTransactor) ([]ApprovalRecord, error)
	}

	ActionRequest struct {
		Action   Action
		Approver user.User
		Comments string
	}

	Service interface {
		// FindActiveDefinition returns nil when the entity type has no active definition.
		FindActiveDefinition(ctx context.Context, entityType EntityType, tx ...core.DBTransactor) (*Definition, error)
		ActiveDefinitions(ctx context.Context) ([]Definition, error)

		// GetByEntity returns the current instance of the entity with its approval records, or nil.
		GetByEntity(ctx context.Context, entityType EntityType, entityID string, tx ...core.DBTransactor) (*Instance, error)
		// LockCurrent returns the current instance of the entity, locked until the end of tx, or nil.
		LockCurrent(ctx context.Context, entityType EntityType, entityID string, tx core.DBTransactor) (*Instance, error)
		Create(ctx context.Context, ni NewInstance, tx ...core.DBTransactor) (Instance, error)
		// GetOrCreate returns the active instance of the entity, starting a new one when there is none.
		// The bool is true when the instance was created.
		GetOrCreate(ctx context.Context, ni NewInstance, tx ...core.DBTransactor) (Instance, bool, error)

		ProcessAction(ctx context.Context, instanceID string, req ActionRequest, tx ...core.DBTransactor) (Instance, error)
		// RecordManual appends an approval record without moving the instance.
		RecordManual(ctx context.Context, inst Instance, approverID string, action Action, comments string, tx ...core.DBTransactor) (ApprovalRecord, error)
	}

	service struct {
		repo  Repository
		cache *cache.Cache
		now   func() time.Time
	}
)

var _ Service = (*service)(nil)

// NewService returns a workflow Service caching definitions for cacheTTL. Definitions never change at runtime.
func NewService(repo Repository, cacheTTL time.Duration) Service {
	return &service{
		repo:  repo,
		cache: cache.New(cacheTTL, 2*cacheTTL),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func typeCacheKey(entityType EntityType) string { return "type:" + string(entityType) }
func idCacheKey(id string) string               { return "id:" + id }

func (svc *service) FindActiveDefinition(ctx context.Context, entityType EntityType, tx ...core.DBTransactor) (*Definition, error) {
	if cached, found := svc.cache.Get(typeCacheKey(entityType)); found {
		return cached.(*Definition), nil
	}

	var def *Definition
	d, err := svc.repo.GetActiveDefinition(ctx, entityType, tx...)
	switch {
	case err == nil:
		if err = d.Validate(); err != nil {
			return nil, err
		}
		def = &d
		svc.cache.SetDefault(idCacheKey(d.ID), def)
	case errors.Cause(err) != ErrDefinitionNotFound:
		return nil, errors.Wrap(err, "getting active definition")
	}
	svc.cache.SetDefault(typeCacheKey(entityType), def)
	return def, nil
}

func (svc *service) getDefinition(ctx context.Context, id string, tx ...core.DBTransactor) (Definition, error) {
	if cached, found := svc.cache.Get(idCacheKey(id)); found {
		if def := cached.(*Definition); def != nil {
			return *def, nil
		}
	}
	def, err := svc.repo.GetDefinition(ctx, id, tx...)
	if err != nil {
		return Definition{}, errors.Wrap(err, "getting definition")
	}
	if err = def.Validate(); err != nil {
		return Definition{}, err
	}
	svc.cache.SetDefault(idCacheKey(id), &def)
	return def, nil
}

func (svc *service) ActiveDefinitions(ctx context.Context) ([]Definition, error) {
	defs, err := svc.repo.QueryActiveDefinitions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying active definitions")
	}
	return defs, nil
}

func (svc *service) GetByEntity(ctx context.Context, entityType EntityType, entityID string, tx ...core.DBTransactor) (*Instance, error) {
	inst, err := svc.repo.GetInstanceByEntity(ctx, entityType, entityID, false, tx...)
	if err != nil {
		if errors.Cause(err) == ErrInstanceNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting instance by entity")
	}

	inst.ApprovalRecords, err = svc.repo.QueryApprovalRecords(ctx, inst.ID, tx...)
	if err != nil {
		return nil, errors.Wrap(err, "querying approval records")
	}
	return &inst, nil
}

func (svc *service) LockCurrent(ctx context.Context, entityType EntityType, entityID string, tx core.DBTransactor) (*Instance, error) {
	inst, err := svc.repo.GetInstanceByEntity(ctx, entityType, entityID, true, tx)
	if err != nil {
		if errors.Cause(err) == ErrInstanceNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "locking current instance")
	}
	return &inst, nil
}

func (svc *service) Create(ctx context.Context, ni NewInstance, tx ...core.DBTransactor) (Instance, error) {
	def, err := svc.FindActiveDefinition(ctx, ni.EntityType, tx...)
	if err != nil {
		return Instance{}, err
	}
	if def == nil {
		return Instance{}, ErrNoDefinition
	}

	metadata := ni.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	inst, err := svc.repo.CreateInstance(ctx, Instance{
		EntityType:   ni.EntityType,
		EntityID:     ni.EntityID,
		DefinitionID: def.ID,
		Status:       StatusPending,
		CurrentStep:  0,
		InitiatedBy:  ni.InitiatedBy,
		InitiatedAt:  svc.now(),
		Metadata:     metadata,
	}, tx...)
	if err != nil {
		return Instance{}, errors.Wrap(err, "creating instance")
	}
	return inst, nil
}

func (svc *service) GetOrCreate(ctx context.Context, ni NewInstance, tx ...core.DBTransactor) (Instance, bool, error) {
	inst, err := svc.repo.GetInstanceByEntity(ctx, ni.EntityType, ni.EntityID, true, tx...)
	if err == nil && !inst.Status.IsTerminal() {
		return inst, false, nil
	}
	if err != nil && errors.Cause(err) != ErrInstanceNotFound {
		return Instance{}, false, errors.Wrap(err, "getting instance by entity")
	}

	inst, err = svc.Create(ctx, ni, tx...)
	if errors.Cause(err) == ErrActiveInstanceExists {
		// a concurrent request started it first
		inst, err = svc.repo.GetInstanceByEntity(ctx, ni.EntityType, ni.EntityID, true, tx...)
		if err != nil {
			return Instance{}, false, errors.Wrap(err, "getting concurrently created instance")
		}
		return inst, false, nil
	}
	if err != nil {
		return Instance{}, false, err
	}
	return inst, true, nil
}

func (svc *service) ProcessAction(ctx context.Context, instanceID string, req ActionRequest, tx ...core.DBTransactor) (Instance, error) {
	if !req.Action.IsValid() || req.Action == ActionPublish {
		return Instance{}, ErrInvalidAction
	}

	inst, err := svc.repo.GetInstance(ctx, instanceID, true, tx...)
	if err != nil {
		return Instance{}, errors.Wrap(err, "getting instance")
	}
	if inst.Status.IsTerminal() {
		return inst, ErrAlreadyTerminal
	}

	def, err := svc.getDefinition(ctx, inst.DefinitionID, tx...)
	if err != nil {
		return Instance{}, err
	}
	if requiresStagePermission(req.Action) {
		if perm := def.StagePermission(inst.CurrentStep); perm != "" && !req.Approver.HasPermission(perm) {
			return Instance{}, core.NewAuthorizationError(perm)
		}
	}

	now := svc.now()
	next, err := Transition(inst, len(def.Stages), req.Action, now)
	if err != nil {
		return inst, err
	}
	saved, err := svc.repo.UpdateInstance(ctx, next, tx...)
	if err != nil {
		return Instance{}, errors.Wrap(err, "updating instance")
	}

	if _, err = svc.repo.CreateApprovalRecord(ctx, ApprovalRecord{
		InstanceID: saved.ID,
		ApproverID: req.Approver.ID,
		Action:     req.Action,
		Comments:   req.Comments,
		ApprovedAt: now,
	}, tx...); err != nil {
		return Instance{}, errors.Wrap(err, "creating approval record")
	}
	return saved, nil
}

func (svc *service) RecordManual(
	ctx context.Context,
	inst Instance,
	approverID string,
	action Action,
	comments string,
	tx ...core.DBTransactor,
) (ApprovalRecord, error) {
	if !action.IsValid() {
		return ApprovalRecord{}, ErrInvalidAction
	}
	rec, err := svc.repo.CreateApprovalRecord(ctx, ApprovalRecord{
		InstanceID: inst.ID,
		ApproverID: approverID,
		Action:     action,
		Comments:   comments,
		ApprovedAt: svc.now(),
	}, tx...)
	if err != nil {
		return ApprovalRecord{}, errors.Wrap(err, "creating manual approval record")
	}
	return rec, nil
}
