package logsvc

import (
	"fmt"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// RollbarLogger writes to a standard logger and reports to Rollbar when enabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.Debug)
	return &RollbarLogger{std: std}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Wait blocks until the queued reports are sent.
func (l *RollbarLogger) Wait() {
	rollbar.Wait()
}

// prepare splits args into what Rollbar expects: msg | error, map[string]interface{}.
// A user.User arg becomes the reported person; extra users are dropped.
func (l *RollbarLogger) prepare(msg string, args []interface{}) (rbArgs, printed []interface{}) {
	var usrSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			if !usrSet {
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				usrSet = true
			}
		case *user.User:
			if a != nil && !usrSet {
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				usrSet = true
			}
		default:
			rbArgs = append(rbArgs, arg)
			printed = append(printed, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return rbArgs, printed
}

func (l *RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("%s: %s", level, msg)
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			l.std.Printf("%+v", err)
			continue
		}
		l.std.Print(fmt.Sprintf("%+v", arg))
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.print("DEBUG", msg, printed)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.print("INFO", msg, printed)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.print("WARN", msg, printed)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.print("ERROR", msg, printed)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, printed := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	l.print("FATAL", msg, printed)
	rollbar.Wait()
	l.std.Fatal(msg)
}
