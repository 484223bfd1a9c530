// Package logsvc reports log entries to Rollbar and mirrors them on a standard logger.
package logsvc

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/prepdesk/core"
)

// RollbarLogger sends entries through its own Rollbar client, so the acting admin travels with each entry
// instead of being set on shared client state.
type RollbarLogger struct {
	client *rollbar.Client
	std    *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	client := rollbar.New(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, conf.WorkDir)
	client.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{client: client, std: std}
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled)
}

// Wait blocks until the queued reports have been sent.
func (l *RollbarLogger) Wait() {
	l.client.Wait()
}

// entry is a log call split into what Rollbar understands.
type entry struct {
	msg    string
	err    error
	fields map[string]interface{}
	person *core.Person
	other  []interface{}
}

// parseEntry sorts args into an error, extra fields (merged when several maps are given) and the acting Person.
// Only the first error and the first Person are kept; anything else is only printed.
func parseEntry(msg string, args []interface{}) entry {
	e := entry{msg: msg}
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case core.Person:
			if e.person == nil {
				p := v
				e.person = &p
			}
		case error:
			if e.err == nil {
				e.err = v
			} else {
				e.other = append(e.other, v)
			}
		case map[string]interface{}:
			if e.fields == nil {
				e.fields = make(map[string]interface{}, len(v))
			}
			for k, val := range v {
				e.fields[k] = val
			}
		default:
			e.other = append(e.other, v)
		}
	}
	return e
}

// items builds the arguments of rollbar.Client.Log.
func (e entry) items() []interface{} {
	ctx := context.Background()
	if e.person != nil {
		ctx = rollbar.NewPersonContext(ctx, &rollbar.Person{Id: e.person.ID, Username: e.person.Username, Email: e.person.Email})
	}
	items := []interface{}{e.msg, ctx}
	if e.err != nil {
		items = append(items, e.err)
	}
	if len(e.fields) > 0 {
		items = append(items, e.fields)
	}
	return items
}

// line renders the entry for the standard logger: "msg key=value ..." with the fields in key order.
func (e entry) line() string {
	var b strings.Builder
	b.WriteString(e.msg)

	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.fields[k])
	}
	if e.person != nil && e.person.Username != "" {
		fmt.Fprintf(&b, " admin=%s", e.person.Username)
	}
	return b.String()
}

func (l *RollbarLogger) log(level, msg string, args []interface{}) {
	e := parseEntry(msg, args)
	l.client.Log(level, e.items()...)

	l.std.Println(e.line())
	if e.err != nil {
		l.std.Printf("%+v\n", e.err)
	}
	for _, v := range e.other {
		l.std.Printf("%+v\n", v)
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }
func (l *RollbarLogger) Info(msg string, args ...interface{})  { l.log(rollbar.INFO, msg, args) }
func (l *RollbarLogger) Warn(msg string, args ...interface{})  { l.log(rollbar.WARN, msg, args) }
func (l *RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	l.client.Wait()
	l.std.Fatal(msg)
}
