package dig_container

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/core/workflow"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	metricsvc "github.com/trezcool/academia/services/metrics"
	"github.com/trezcool/academia/storage/database"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/storage/database/postgres"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Store is the database handle and the repositories built on it.
type Store struct {
	dig.Out

	DB        core.DB
	Closer    io.Closer
	Users     user.Repository
	OrgUnits  orgunit.Repository
	Workflows workflow.Repository
	History   history.Repository
	Academic  academic.Repository
}

type ServerParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	UserSvc     user.Service
	OrgUnitSvc  orgunit.Service
	WorkflowSvc workflow.Service
	HistorySvc  history.Service
	AcademicSvc academic.Service
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "API : ", log.LstdFlags), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newStore(conf *core.Config, loggerParam DBLoggerParam) (Store, error) {
	if conf.Database.Engine == "inmem" {
		loggerParam.Logger.Warn("using the in-memory store: data is lost on shutdown")
		db := inmemdb.Open()
		return Store{
			DB:        db,
			Closer:    nopCloser{},
			Users:     inmemdb.NewUserRepository(db),
			OrgUnits:  inmemdb.NewOrgUnitRepository(db),
			Workflows: inmemdb.NewWorkflowRepository(db),
			History:   inmemdb.NewHistoryRepository(db),
			Academic:  inmemdb.NewAcademicRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return Store{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return Store{}, errors.Wrap(err, "opening database")
	}
	if err = database.Migrate(db.DB.DB); err != nil {
		_ = db.Close()
		return Store{}, errors.Wrap(err, "migrating database")
	}
	loggerParam.Logger.Info(fmt.Sprintf("connected to database %q at %s", conf.Database.Name, conf.Database.Address()))

	return Store{
		DB:        db,
		Closer:    db,
		Users:     postgres.NewUserRepository(db),
		OrgUnits:  postgres.NewOrgUnitRepository(db),
		Workflows: postgres.NewWorkflowRepository(db),
		History:   postgres.NewHistoryRepository(db),
		Academic:  postgres.NewAcademicRepository(db),
	}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newMetrics() (core.Metrics, error) {
	return metricsvc.NewPrometheusMetrics(prometheus.DefaultRegisterer)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newWorkflowService(conf *core.Config, repo workflow.Repository) workflow.Service {
	return workflow.NewService(repo, conf.Workflow.DefinitionCacheTTL)
}

func newServer(p ServerParams) *echoapi.Server {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	return echoapi.NewServer(p.Conf.Server.Address, shutdown, &echoapi.Deps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		UserSvc:     p.UserSvc,
		OrgUnitSvc:  p.OrgUnitSvc,
		WorkflowSvc: p.WorkflowSvc,
		HistorySvc:  p.HistorySvc,
		AcademicSvc: p.AcademicSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(newEmailService))
	must(c.Provide(newMetrics))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(orgunit.NewService))
	must(c.Provide(newWorkflowService))
	must(c.Provide(history.NewService))
	must(c.Provide(academic.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
