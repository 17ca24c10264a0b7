package logsvc

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// RollbarLogger writes every event to a std logger and reports it to Rollbar.
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
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// event is a log call split into what Rollbar understands.
type event struct {
	msg    string
	err    error
	extras map[string]interface{}
	person *rollbar.Person
}

// newEvent sorts args: the first error is reported with its stack, maps are merged
// into the extras, the first user (or user summary) becomes the Rollbar person,
// anything else is kept as an extra under its position.
func newEvent(msg string, args []interface{}) event {
	ev := event{msg: msg, extras: make(map[string]interface{})}
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
		case user.User:
			if ev.person == nil {
				ev.person = &rollbar.Person{Id: v.ID, Username: v.Name, Email: v.Email}
			}
		case user.Summary:
			if ev.person == nil {
				ev.person = &rollbar.Person{Id: v.ID, Username: v.Name, Email: v.Email}
			}
		case error:
			if ev.err == nil {
				ev.err = v
			} else {
				ev.extras[fmt.Sprintf("error_%d", i)] = v.Error()
			}
		case map[string]interface{}:
			for k, val := range v {
				ev.extras[k] = val
			}
		default:
			ev.extras[fmt.Sprintf("arg_%d", i)] = v
		}
	}
	return ev
}

// items are the rollbar.Log arguments. The person travels in a context,
// so concurrent events never share it.
func (ev event) items() []interface{} {
	ctx := context.Background()
	if ev.person != nil {
		ctx = rollbar.NewPersonContext(ctx, ev.person)
	}
	if ev.err == nil {
		return []interface{}{ctx, ev.msg, ev.extras}
	}
	// rollbar drops the message of error items
	extras := make(map[string]interface{}, len(ev.extras)+1)
	for k, v := range ev.extras {
		extras[k] = v
	}
	extras["message"] = ev.msg
	return []interface{}{ctx, ev.err, extras}
}

// String renders the event on one line: msg: err key=value ...
func (ev event) String() string {
	var b strings.Builder
	b.WriteString(ev.msg)
	if ev.err != nil {
		b.WriteString(": ")
		b.WriteString(ev.err.Error())
	}
	keys := make([]string, 0, len(ev.extras))
	for k := range ev.extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.extras[k])
	}
	if ev.person != nil {
		fmt.Fprintf(&b, " user=%s", ev.person.Email)
	}
	return b.String()
}

func (l RollbarLogger) log(level, msg string, args []interface{}) event {
	ev := newEvent(msg, args)
	rollbar.Log(level, ev.items()...)
	l.std.Printf("[%s] %s", strings.ToUpper(level), ev)
	return ev
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }

func (l RollbarLogger) Info(msg string, args ...interface{}) { l.log(rollbar.INFO, msg, args) }

func (l RollbarLogger) Warn(msg string, args ...interface{}) { l.log(rollbar.WARN, msg, args) }

func (l RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

// Fatal reports the event, waits for Rollbar to flush and exits.
func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	ev := l.log(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(ev.msg)
}
