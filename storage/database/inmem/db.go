// Package inmemdb is an in-memory store for development and tests.
// Transactions are serialized and work on a copy of the data which replaces it on commit.
// Changes to curriculum entities are recorded in the history the way the database audit triggers do.
package inmemdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/core/workflow"
)

type (
	DB struct {
		txMu   sync.Mutex   // held by the running transaction
		dataMu sync.RWMutex // guards data
		data   *tables
	}

	tables struct {
		users       map[string]user.User
		orgUnits    map[string]orgunit.OrgUnit
		courses     map[string]academic.Course
		programs    map[string]academic.Program
		majors      map[string]academic.Major
		cohorts     map[string]academic.Cohort
		students    map[string]string // student progress id: cohort id
		definitions map[string]workflow.Definition
		instances   map[string]workflow.Instance
		records     []workflow.ApprovalRecord
		history     []history.Entry
		historySeq  int64
	}

	// Tx is the core.DBTransactor of the in-memory store.
	Tx struct {
		db   *DB
		data *tables
		hc   *history.Context
		done bool
	}
)

var (
	_ core.DB           = (*DB)(nil)
	_ core.DBTransactor = (*Tx)(nil)
)

// Open returns an empty store with the default workflow definitions.
func Open() *DB {
	data := newTables()
	for _, def := range DefaultDefinitions() {
		data.definitions[def.ID] = def
	}
	return &DB{data: data}
}

func newTables() *tables {
	return &tables{
		users:       make(map[string]user.User),
		orgUnits:    make(map[string]orgunit.OrgUnit),
		courses:     make(map[string]academic.Course),
		programs:    make(map[string]academic.Program),
		majors:      make(map[string]academic.Major),
		cohorts:     make(map[string]academic.Cohort),
		students:    make(map[string]string),
		definitions: make(map[string]workflow.Definition),
		instances:   make(map[string]workflow.Instance),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.orgUnits {
		c.orgUnits[k] = v
	}
	for k, v := range t.courses {
		c.courses[k] = v
	}
	for k, v := range t.programs {
		c.programs[k] = v
	}
	for k, v := range t.majors {
		c.majors[k] = v
	}
	for k, v := range t.cohorts {
		c.cohorts[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.definitions {
		c.definitions[k] = v
	}
	for k, v := range t.instances {
		c.instances[k] = v
	}
	c.records = append(c.records, t.records...)
	c.history = append(c.history, t.history...)
	c.historySeq = t.historySeq
	return c
}

// DefaultDefinitions are the workflow definitions seeded by the database migrations.
func DefaultDefinitions() []workflow.Definition {
	created := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	stage := func(name string, entityType workflow.EntityType, verb string) workflow.Stage {
		return workflow.Stage{Name: name, RequiredPermission: user.Permission(entityType.Resource(), verb)}
	}
	return []workflow.Definition{
		{
			ID: "5b0e4a52-8f1c-4d1e-9a37-0c1f3c2a1001", EntityType: workflow.EntityCourse, Name: "Course approval",
			Stages: []workflow.Stage{
				stage("department_review", workflow.EntityCourse, user.VerbReview),
				stage("academic_approval", workflow.EntityCourse, user.VerbApprove),
			},
			IsActive: true, CreatedAt: created,
		},
		{
			ID: "5b0e4a52-8f1c-4d1e-9a37-0c1f3c2a1002", EntityType: workflow.EntityProgram, Name: "Program approval",
			Stages: []workflow.Stage{
				stage("faculty_review", workflow.EntityProgram, user.VerbReview),
				stage("academic_approval", workflow.EntityProgram, user.VerbApprove),
			},
			IsActive: true, CreatedAt: created,
		},
		{
			ID: "5b0e4a52-8f1c-4d1e-9a37-0c1f3c2a1003", EntityType: workflow.EntityMajor, Name: "Major approval",
			Stages: []workflow.Stage{
				stage("faculty_review", workflow.EntityMajor, user.VerbReview),
				stage("academic_approval", workflow.EntityMajor, user.VerbApprove),
			},
			IsActive: true, CreatedAt: created,
		},
		{
			ID: "5b0e4a52-8f1c-4d1e-9a37-0c1f3c2a1004", EntityType: workflow.EntityCohort, Name: "Cohort approval",
			Stages: []workflow.Stage{
				stage("registrar_approval", workflow.EntityCohort, user.VerbApprove),
			},
			IsActive: true, CreatedAt: created,
		},
	}
}

// BeginTx waits for the running transaction, if any, to end.
func (db *DB) BeginTx(ctx context.Context, _ *sql.TxOptions) (core.DBTransactor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.txMu.Lock()
	db.dataMu.RLock()
	data := db.data.clone()
	db.dataMu.RUnlock()
	return &Tx{db: db, data: data}, nil
}

func (tx *Tx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.dataMu.Lock()
	tx.db.data = tx.data
	tx.db.dataMu.Unlock()
	tx.db.txMu.Unlock()
	return nil
}

func (tx *Tx) Rollback() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true
	tx.db.txMu.Unlock()
	return nil
}

func txOf(tx []core.DBTransactor) *Tx {
	if len(tx) > 0 {
		if t, ok := tx[0].(*Tx); ok && !t.done {
			return t
		}
	}
	return nil
}

// read runs fn on the transaction data, or on the committed data.
func (db *DB) read(tx []core.DBTransactor, fn func(t *tables) error) error {
	if t := txOf(tx); t != nil {
		return fn(t.data)
	}
	db.dataMu.RLock()
	defer db.dataMu.RUnlock()
	return fn(db.data)
}

// write runs fn in the given transaction, or in its own one committed when fn succeeds.
func (db *DB) write(tx []core.DBTransactor, fn func(t *tables, hc *history.Context) error) error {
	if t := txOf(tx); t != nil {
		return fn(t.data, t.hc)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.dataMu.RLock()
	data := db.data.clone()
	db.dataMu.RUnlock()
	if err := fn(data, nil); err != nil {
		return err
	}
	db.dataMu.Lock()
	db.data = data
	db.dataMu.Unlock()
	return nil
}

// EnrollStudent adds a student progress row to a cohort and returns its id.
func (db *DB) EnrollStudent(cohortID string) (string, error) {
	id := uuid.New().String()
	err := db.write(nil, func(t *tables, _ *history.Context) error {
		if _, ok := t.cohorts[cohortID]; !ok {
			return errors.Errorf("cohort %s not found", cohortID)
		}
		t.students[id] = cohortID
		return nil
	})
	return id, err
}

// recordHistory emulates the record_history() trigger.
func (t *tables) recordHistory(hc *history.Context, entityType workflow.EntityType, id string, before, after interface{}) {
	var h history.Context
	if hc != nil {
		h = *hc
	}
	entry := history.Entry{
		EntityType: string(entityType),
		EntityID:   id,
		ActorID:    h.ActorID,
		ActorName:  h.ActorName,
		UserAgent:  h.UserAgent,
		Metadata:   copyMap(h.Metadata),
		ChangedAt:  time.Now().UTC(),
	}

	add := func(e history.Entry) {
		t.historySeq++
		e.ID = t.historySeq
		t.history = append(t.history, e)
	}
	switch {
	case before == nil:
		entry.Operation = "INSERT"
		entry.NewValue = jsonText(after)
		add(entry)
	case after == nil:
		entry.Operation = "DELETE"
		entry.OldValue = jsonText(before)
		add(entry)
	default:
		entry.Operation = "UPDATE"
		oldFields, newFields := fields(before), fields(after)
		for _, key := range sortedKeys(newFields) {
			if key == "updated_at" || string(oldFields[key]) == string(newFields[key]) {
				continue
			}
			e := entry
			e.Field = key
			e.OldValue = fieldText(oldFields[key])
			e.NewValue = fieldText(newFields[key])
			add(e)
		}
	}
}

// hydrated relations are not columns
var relationFields = map[string]bool{"org_unit": true, "unified_workflow": true, "student_count": true}

func fields(v interface{}) map[string]json.RawMessage {
	m := make(map[string]json.RawMessage)
	b, err := json.Marshal(v)
	if err != nil {
		return m
	}
	_ = json.Unmarshal(b, &m)
	for k := range relationFields {
		delete(m, k)
	}
	return m
}

func jsonText(v interface{}) *string {
	f := fields(v)
	b, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// fieldText renders a value the way the ->> operator does.
func fieldText(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	s = string(raw)
	return &s
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
