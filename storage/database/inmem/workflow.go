package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/workflow"
)

type workflowRepository struct {
	db *DB
}

var _ workflow.Repository = (*workflowRepository)(nil)

func NewWorkflowRepository(db *DB) workflow.Repository {
	return &workflowRepository{db: db}
}

func (repo *workflowRepository) GetActiveDefinition(ctx context.Context, entityType workflow.EntityType, tx ...core.DBTransactor) (workflow.Definition, error) {
	var def workflow.Definition
	err := repo.db.read(tx, func(t *tables) error {
		for _, d := range t.definitions {
			if d.EntityType == entityType && d.IsActive {
				def = d
				return nil
			}
		}
		return workflow.ErrDefinitionNotFound
	})
	return def, err
}

func (repo *workflowRepository) GetDefinition(ctx context.Context, id string, tx ...core.DBTransactor) (workflow.Definition, error) {
	var def workflow.Definition
	err := repo.db.read(tx, func(t *tables) error {
		d, ok := t.definitions[id]
		if !ok {
			return workflow.ErrDefinitionNotFound
		}
		def = d
		return nil
	})
	return def, err
}

func (repo *workflowRepository) QueryActiveDefinitions(ctx context.Context, tx ...core.DBTransactor) ([]workflow.Definition, error) {
	var defs []workflow.Definition
	err := repo.db.read(tx, func(t *tables) error {
		for _, d := range t.definitions {
			if d.IsActive {
				defs = append(defs, d)
			}
		}
		return nil
	})
	sort.Slice(defs, func(i, j int) bool { return defs[i].EntityType < defs[j].EntityType })
	return defs, err
}

// SaveDefinition adds or replaces a workflow definition, deactivating the other definitions of its entity type
// when it is active.
func (db *DB) SaveDefinition(def workflow.Definition) (workflow.Definition, error) {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	err := db.write(nil, func(t *tables, _ *history.Context) error {
		if def.IsActive {
			for id, d := range t.definitions {
				if d.EntityType == def.EntityType && d.IsActive {
					d.IsActive = false
					t.definitions[id] = d
				}
			}
		}
		t.definitions[def.ID] = def
		return nil
	})
	return def, err
}

// Locks are implied: transactions are serialized.

func (repo *workflowRepository) GetInstanceByEntity(
	ctx context.Context,
	entityType workflow.EntityType,
	entityID string,
	_ bool,
	tx ...core.DBTransactor,
) (workflow.Instance, error) {
	var inst workflow.Instance
	err := repo.db.read(tx, func(t *tables) error {
		found := false
		for _, i := range t.instances {
			if i.EntityType != entityType || i.EntityID != entityID {
				continue
			}
			if !found || moreCurrent(i, inst) {
				inst, found = i, true
			}
		}
		if !found {
			return workflow.ErrInstanceNotFound
		}
		return nil
	})
	return inst, err
}

// moreCurrent reports whether a is preferred over b as the current instance of an entity: active first, then newest.
func moreCurrent(a, b workflow.Instance) bool {
	if a.Status.IsTerminal() != b.Status.IsTerminal() {
		return !a.Status.IsTerminal()
	}
	return a.InitiatedAt.After(b.InitiatedAt)
}

func (repo *workflowRepository) GetInstance(ctx context.Context, id string, _ bool, tx ...core.DBTransactor) (workflow.Instance, error) {
	var inst workflow.Instance
	err := repo.db.read(tx, func(t *tables) error {
		i, ok := t.instances[id]
		if !ok {
			return workflow.ErrInstanceNotFound
		}
		inst = i
		return nil
	})
	return inst, err
}

func (repo *workflowRepository) CreateInstance(ctx context.Context, inst workflow.Instance, tx ...core.DBTransactor) (workflow.Instance, error) {
	inst.ID = uuid.New().String()
	inst.Version = 1
	inst.Metadata = copyMap(inst.Metadata)
	inst.ApprovalRecords = nil
	err := repo.db.write(tx, func(t *tables, _ *history.Context) error {
		for _, i := range t.instances {
			if i.EntityType == inst.EntityType && i.EntityID == inst.EntityID && !i.Status.IsTerminal() {
				return workflow.ErrActiveInstanceExists
			}
		}
		t.instances[inst.ID] = inst
		return nil
	})
	if err != nil {
		return workflow.Instance{}, err
	}
	return inst, nil
}

func (repo *workflowRepository) UpdateInstance(ctx context.Context, inst workflow.Instance, tx ...core.DBTransactor) (workflow.Instance, error) {
	err := repo.db.write(tx, func(t *tables, _ *history.Context) error {
		current, ok := t.instances[inst.ID]
		if !ok {
			return workflow.ErrInstanceNotFound
		}
		if current.Version != inst.Version {
			return workflow.ErrConcurrentUpdate
		}
		inst.Version++
		inst.Metadata = copyMap(inst.Metadata)
		inst.ApprovalRecords = nil
		t.instances[inst.ID] = inst
		return nil
	})
	if err != nil {
		return workflow.Instance{}, err
	}
	return inst, nil
}

func (repo *workflowRepository) CreateApprovalRecord(ctx context.Context, rec workflow.ApprovalRecord, tx ...core.DBTransactor) (workflow.ApprovalRecord, error) {
	rec.ID = uuid.New().String()
	err := repo.db.write(tx, func(t *tables, _ *history.Context) error {
		if _, ok := t.instances[rec.InstanceID]; !ok {
			return workflow.ErrInstanceNotFound
		}
		t.records = append(t.records, rec)
		return nil
	})
	if err != nil {
		return workflow.ApprovalRecord{}, err
	}
	return rec, nil
}

func (repo *workflowRepository) QueryApprovalRecords(ctx context.Context, instanceID string, tx ...core.DBTransactor) ([]workflow.ApprovalRecord, error) {
	records := make([]workflow.ApprovalRecord, 0)
	err := repo.db.read(tx, func(t *tables) error {
		for _, rec := range t.records {
			if rec.InstanceID == instanceID {
				records = append(records, rec)
			}
		}
		return nil
	})
	return records, err
}
