// Package debug includes debugging helpers for the arena runtime.
//
// Unlike a typical library, this runtime is linked into code emitted by a
// compiler, so there is no command line of its own to pass debug flags on.
// Instead, tracing is gated by the RTARENA_DEBUG environment variable, read
// once at first use.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/timandy/routine"
)

var (
	once    sync.Once
	enabled bool
	filter  *regexp.Regexp
)

// Enabled reports whether RTARENA_DEBUG is set to a non-empty value for the
// current process; an empty value leaves tracing off.
//
// The value is also interpreted as a regexp that filters log lines by their
// formatted text; a value that does not compile as a regexp matches every
// line.
func Enabled() bool {
	once.Do(initFromEnv)
	return enabled
}

func initFromEnv() {
	v := os.Getenv("RTARENA_DEBUG")
	if v == "" {
		return
	}
	enabled = true
	if re, err := regexp.Compile(v); err == nil {
		filter = re
	}
}

// Log prints debugging information to stderr, or to a captured testing.TB
// if one was installed with [WithTesting].
//
// context is optional args for fmt.Printf that are printed before operation;
// this lets callers identify a family of related log lines.
func Log(context []any, operation string, format string, args ...any) {
	if !Enabled() {
		return
	}

	skip := 1
again:
	pc, file, line, _ := runtime.Caller(skip)
	fn := runtime.FuncForPC(pc)
	name := fn.Name()
	name = name[strings.LastIndex(name, ".")+1:]
	if strings.HasPrefix(name, "log") || strings.Contains(name, "Log") {
		skip++
		goto again
	}

	pkg := fn.Name()
	if idx := strings.LastIndex(pkg, "/"); idx >= 0 {
		pkg = pkg[idx+1:]
	}
	if idx := strings.Index(pkg, "."); idx >= 0 {
		pkg = pkg[:idx]
	}

	file = filepath.Base(file)

	buf := new(strings.Builder)
	_, _ = fmt.Fprintf(buf, "%s/%s:%d [g%04d", pkg, file, line, routine.Goid())
	if len(context) >= 1 {
		_, _ = fmt.Fprintf(buf, ", "+context[0].(string), context[1:]...)
	}
	_, _ = fmt.Fprintf(buf, "] %s: ", operation)
	_, _ = fmt.Fprintf(buf, format, args...)

	if filter != nil && !filter.MatchString(buf.String()) {
		return
	}

	if t := tls.Get(); t != nil {
		t.Log(buf.String())
		return
	}

	_, _ = buf.Write([]byte{'\n'})
	_, _ = os.Stderr.WriteString(buf.String())
}

// Assert panics if cond is false and tracing is enabled. Outside of
// RTARENA_DEBUG it is a no-op: this is a diagnostic aid, not a substitute
// for error handling.
func Assert(cond bool, format string, args ...any) {
	if !cond && Enabled() {
		panic(fmt.Errorf("rtarena: internal assertion failed: "+format, args...))
	}
}
