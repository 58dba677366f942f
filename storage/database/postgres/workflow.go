package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/workflow"
	"github.com/trezcool/academia/storage/database"
)

const (
	definitionColumns = "id, entity_type, name, stages, is_active, created_at"
	instanceColumns   = "id, entity_type, entity_id, workflow_definition_id, status, current_step, initiated_by, " +
		"initiated_at, completed_at, metadata, version"
	recordColumns = "id, workflow_instance_id, approver_id, action, comments, approved_at"

	activeInstance = "status NOT IN ('COMPLETED', 'REJECTED')"
)

type definitionRow struct {
	ID         string         `db:"id"`
	EntityType string         `db:"entity_type"`
	Name       string         `db:"name"`
	Stages     types.JSONText `db:"stages"`
	IsActive   bool           `db:"is_active"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r definitionRow) definition() (workflow.Definition, error) {
	var stages []workflow.Stage
	if err := r.Stages.Unmarshal(&stages); err != nil {
		return workflow.Definition{}, errors.Wrapf(err, "decoding stages of definition %s", r.ID)
	}
	return workflow.Definition{
		ID:         r.ID,
		EntityType: workflow.EntityType(r.EntityType),
		Name:       r.Name,
		Stages:     stages,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt.UTC(),
	}, nil
}

type instanceRow struct {
	ID           string         `db:"id"`
	EntityType   string         `db:"entity_type"`
	EntityID     string         `db:"entity_id"`
	DefinitionID string         `db:"workflow_definition_id"`
	Status       string         `db:"status"`
	CurrentStep  int            `db:"current_step"`
	InitiatedBy  string         `db:"initiated_by"`
	InitiatedAt  time.Time      `db:"initiated_at"`
	CompletedAt  null.Time      `db:"completed_at"`
	Metadata     types.JSONText `db:"metadata"`
	Version      int            `db:"version"`
}

func (r instanceRow) instance() workflow.Instance {
	inst := workflow.Instance{
		ID:           r.ID,
		EntityType:   workflow.EntityType(r.EntityType),
		EntityID:     r.EntityID,
		DefinitionID: r.DefinitionID,
		Status:       workflow.Status(r.Status),
		CurrentStep:  r.CurrentStep,
		InitiatedBy:  r.InitiatedBy,
		InitiatedAt:  r.InitiatedAt.UTC(),
		Metadata:     jsonMap(r.Metadata),
		Version:      r.Version,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		inst.CompletedAt = &t
	}
	return inst
}

type recordRow struct {
	ID         string      `db:"id"`
	InstanceID string      `db:"workflow_instance_id"`
	ApproverID string      `db:"approver_id"`
	Action     string      `db:"action"`
	Comments   null.String `db:"comments"`
	ApprovedAt time.Time   `db:"approved_at"`
}

type workflowRepository struct {
	baseRepository
}

var _ workflow.Repository = (*workflowRepository)(nil)

func NewWorkflowRepository(db *database.DB) workflow.Repository {
	return &workflowRepository{baseRepository{db: db}}
}

func (repo *workflowRepository) GetActiveDefinition(ctx context.Context, entityType workflow.EntityType, tx ...core.DBTransactor) (workflow.Definition, error) {
	var row definitionRow
	err := repo.getExec(tx).GetContext(ctx, &row,
		"SELECT "+definitionColumns+" FROM workflow_definitions WHERE entity_type = $1 AND is_active", string(entityType))
	if err != nil {
		return workflow.Definition{}, trapNoRowsErr(err, workflow.ErrDefinitionNotFound, "getting active definition")
	}
	return row.definition()
}

func (repo *workflowRepository) GetDefinition(ctx context.Context, id string, tx ...core.DBTransactor) (workflow.Definition, error) {
	if _, err := uuid.Parse(id); err != nil {
		return workflow.Definition{}, workflow.ErrDefinitionNotFound
	}
	var row definitionRow
	err := repo.getExec(tx).GetContext(ctx, &row, "SELECT "+definitionColumns+" FROM workflow_definitions WHERE id = $1", id)
	if err != nil {
		return workflow.Definition{}, trapNoRowsErr(err, workflow.ErrDefinitionNotFound, "getting definition")
	}
	return row.definition()
}

func (repo *workflowRepository) QueryActiveDefinitions(ctx context.Context, tx ...core.DBTransactor) ([]workflow.Definition, error) {
	var rows []definitionRow
	err := repo.getExec(tx).SelectContext(ctx, &rows,
		"SELECT "+definitionColumns+" FROM workflow_definitions WHERE is_active ORDER BY entity_type")
	if err != nil {
		return nil, errors.Wrap(err, "querying active definitions")
	}
	defs := make([]workflow.Definition, 0, len(rows))
	for _, r := range rows {
		def, err := r.definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (repo *workflowRepository) GetInstanceByEntity(
	ctx context.Context,
	entityType workflow.EntityType,
	entityID string,
	forUpdate bool,
	tx ...core.DBTransactor,
) (workflow.Instance, error) {
	if _, err := uuid.Parse(entityID); err != nil {
		return workflow.Instance{}, workflow.ErrInstanceNotFound
	}
	var row instanceRow
	err := repo.getExec(tx).GetContext(ctx, &row,
		"SELECT "+instanceColumns+" FROM workflow_instances WHERE entity_type = $1 AND entity_id = $2"+
			" ORDER BY ("+activeInstance+") DESC, initiated_at DESC LIMIT 1"+lockClause(forUpdate),
		string(entityType), entityID,
	)
	if err != nil {
		return workflow.Instance{}, trapNoRowsErr(err, workflow.ErrInstanceNotFound, "getting instance by entity")
	}
	return row.instance(), nil
}

func (repo *workflowRepository) GetInstance(ctx context.Context, id string, forUpdate bool, tx ...core.DBTransactor) (workflow.Instance, error) {
	if _, err := uuid.Parse(id); err != nil {
		return workflow.Instance{}, workflow.ErrInstanceNotFound
	}
	var row instanceRow
	err := repo.getExec(tx).GetContext(ctx, &row,
		"SELECT "+instanceColumns+" FROM workflow_instances WHERE id = $1"+lockClause(forUpdate), id)
	if err != nil {
		return workflow.Instance{}, trapNoRowsErr(err, workflow.ErrInstanceNotFound, "getting instance")
	}
	return row.instance(), nil
}

func (repo *workflowRepository) CreateInstance(ctx context.Context, inst workflow.Instance, tx ...core.DBTransactor) (workflow.Instance, error) {
	inst.ID = uuid.New().String()
	inst.Version = 1
	metadata, err := toJSON(inst.Metadata)
	if err != nil {
		return workflow.Instance{}, err
	}

	res, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO workflow_instances ("+instanceColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)"+
			" ON CONFLICT (entity_type, entity_id) WHERE "+activeInstance+" DO NOTHING",
		inst.ID, string(inst.EntityType), inst.EntityID, inst.DefinitionID, string(inst.Status), inst.CurrentStep,
		inst.InitiatedBy, inst.InitiatedAt.UTC(), null.TimeFromPtr(inst.CompletedAt), metadata, inst.Version,
	)
	if err != nil {
		return workflow.Instance{}, database.TranslateError(err, "inserting instance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workflow.Instance{}, workflow.ErrActiveInstanceExists
	}
	return inst, nil
}

func (repo *workflowRepository) UpdateInstance(ctx context.Context, inst workflow.Instance, tx ...core.DBTransactor) (workflow.Instance, error) {
	metadata, err := toJSON(inst.Metadata)
	if err != nil {
		return workflow.Instance{}, err
	}

	res, err := repo.getExec(tx).ExecContext(ctx,
		`UPDATE workflow_instances SET status = $1, current_step = $2, completed_at = $3, metadata = $4, version = version + 1
		 WHERE id = $5 AND version = $6`,
		string(inst.Status), inst.CurrentStep, null.TimeFromPtr(inst.CompletedAt), metadata, inst.ID, inst.Version,
	)
	if err != nil {
		return workflow.Instance{}, database.TranslateError(err, "updating instance")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err = repo.GetInstance(ctx, inst.ID, false, tx...); err != nil {
			return workflow.Instance{}, err
		}
		return workflow.Instance{}, workflow.ErrConcurrentUpdate
	}
	inst.Version++
	return inst, nil
}

func (repo *workflowRepository) CreateApprovalRecord(ctx context.Context, rec workflow.ApprovalRecord, tx ...core.DBTransactor) (workflow.ApprovalRecord, error) {
	rec.ID = uuid.New().String()
	_, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO approval_records ("+recordColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		rec.ID, rec.InstanceID, rec.ApproverID, string(rec.Action), null.NewString(rec.Comments, rec.Comments != ""), rec.ApprovedAt.UTC(),
	)
	if err != nil {
		return workflow.ApprovalRecord{}, database.TranslateError(err, "inserting approval record")
	}
	return rec, nil
}

func (repo *workflowRepository) QueryApprovalRecords(ctx context.Context, instanceID string, tx ...core.DBTransactor) ([]workflow.ApprovalRecord, error) {
	var rows []recordRow
	err := repo.getExec(tx).SelectContext(ctx, &rows,
		"SELECT "+recordColumns+" FROM approval_records WHERE workflow_instance_id = $1 ORDER BY approved_at, id", instanceID)
	if err != nil {
		return nil, errors.Wrap(err, "querying approval records")
	}
	records := make([]workflow.ApprovalRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, workflow.ApprovalRecord{
			ID:         r.ID,
			InstanceID: r.InstanceID,
			ApproverID: r.ApproverID,
			Action:     workflow.Action(r.Action),
			Comments:   r.Comments.String,
			ApprovedAt: r.ApprovedAt.UTC(),
		})
	}
	return records, nil
}
