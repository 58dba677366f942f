// Package testutil wires the services on the in-memory store and creates fixtures for tests.
package testutil

import (
	"context"
	"net/mail"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/core/workflow"
	"github.com/trezcool/academia/storage/database/inmem"
)

type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// MailBox is a synchronous core.EmailService keeping the messages it is asked to send.
type MailBox struct {
	mu       sync.Mutex
	messages []core.EmailMessage
}

var _ core.EmailService = (*MailBox)(nil)

func (mb *MailBox) SendMessages(messages ...*core.EmailMessage) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, msg := range messages {
		mb.messages = append(mb.messages, *msg)
	}
}

func (mb *MailBox) Messages() []core.EmailMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]core.EmailMessage(nil), mb.messages...)
}

// Metrics counts the recorded events, keyed "<entity type>:<operation|action>:<status>".
type Metrics struct {
	mu     sync.Mutex
	Counts map[string]int
}

var _ core.Metrics = (*Metrics)(nil)

func (m *Metrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Counts == nil {
		m.Counts = make(map[string]int)
	}
	m.Counts[key]++
}

func (m *Metrics) WorkflowActionProcessed(entityType, action, status string) {
	m.inc(entityType + ":" + action + ":" + status)
}

func (m *Metrics) EntityMutated(entityType, operation string) {
	m.inc(entityType + ":" + operation)
}

func (m *Metrics) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counts[key]
}

func NewValidator() *validator.Validate {
	validate, _ := NewValidatorWithTranslator()
	return validate
}

// NewValidatorWithTranslator returns a validator and the translator its error messages are registered on.
func NewValidatorWithTranslator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	return validate, translator
}

func NewConfig() *core.Config {
	conf := &core.Config{
		Env:              "TEST",
		AppName:          "Academia",
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: mail.Address{Name: "Academia", Address: "noreply@academia.test"},
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Workflow.DefinitionCacheTTL = time.Minute
	return conf
}

// App holds every service wired on a fresh in-memory store.
type App struct {
	DB         *inmemdb.DB
	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator
	Mail       *MailBox
	Metrics    *Metrics
	UserRepo   user.Repository
	Users      user.Service
	OrgUnits   orgunit.Service
	Workflows  workflow.Service
	History    history.Service
	Academic   academic.Service
}

func NewApp() *App {
	db := inmemdb.Open()
	conf := NewConfig()
	validate, translator := NewValidatorWithTranslator()
	logger := NopLogger{}

	app := &App{
		DB:         db,
		Conf:       conf,
		Validate:   validate,
		Translator: translator,
		Mail:       new(MailBox),
		Metrics:    new(Metrics),
		UserRepo:   inmemdb.NewUserRepository(db),
	}
	app.Users = user.NewService(app.UserRepo)
	app.OrgUnits = orgunit.NewService(inmemdb.NewOrgUnitRepository(db))
	app.Workflows = workflow.NewService(inmemdb.NewWorkflowRepository(db), conf.Workflow.DefinitionCacheTTL)
	app.History = history.NewService(db, inmemdb.NewHistoryRepository(db), app.Users, logger)
	app.Academic = academic.NewService(
		inmemdb.NewAcademicRepository(db),
		app.OrgUnits,
		app.Workflows,
		app.History,
		app.Users,
		app.Mail,
		app.Metrics,
		logger,
		validate,
		conf,
	)
	return app
}

func CreateUser(t *testing.T, repo user.Repository, name, uname, email string, roles ...string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  true,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateOrgUnit(t *testing.T, svc orgunit.Service, code, name, typ string) orgunit.OrgUnit {
	t.Helper()
	ou, err := svc.Create(context.Background(), orgunit.NewOrgUnit{Code: code, Name: name, Type: typ})
	if err != nil {
		t.Fatalf("CreateOrgUnit() failed: %v", err)
	}
	return ou
}

func Caller(usr user.User) academic.Caller {
	return academic.Caller{User: usr, Request: history.Request{UserAgent: "testutil/1.0"}}
}

func CreateCourse(t *testing.T, svc academic.Service, caller academic.Caller, orgUnitID, code string) academic.Course {
	t.Helper()
	c, err := svc.CreateCourse(context.Background(), caller, academic.NewCourse{
		NewBase: academic.NewBase{OrgUnitID: orgUnitID, Code: code, Name: "Course " + code},
		Credits: 3,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreateMajor(t *testing.T, svc academic.Service, caller academic.Caller, orgUnitID, code string) academic.Major {
	t.Helper()
	m, err := svc.CreateMajor(context.Background(), caller, academic.NewMajor{
		NewBase:       academic.NewBase{OrgUnitID: orgUnitID, Code: code, Name: "Major " + code},
		DurationYears: 4,
	})
	if err != nil {
		t.Fatalf("CreateMajor() failed: %v", err)
	}
	return m
}

func CreateCohort(t *testing.T, svc academic.Service, caller academic.Caller, orgUnitID, majorID, code string) academic.Cohort {
	t.Helper()
	c, err := svc.CreateCohort(context.Background(), caller, academic.NewCohort{
		NewBase:      academic.NewBase{OrgUnitID: orgUnitID, Code: code, Name: "Cohort " + code},
		MajorID:      majorID,
		AcademicYear: "2025-2026",
		StartDate:    time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		IntakeQuota:  120,
	})
	if err != nil {
		t.Fatalf("CreateCohort() failed: %v", err)
	}
	return c
}
