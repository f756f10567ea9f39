// Package log provides simple, levelled logging for the harvester.
//
// Time/date are left out by default because most deployments run this under
// systemd, which timestamps stderr for us. Levels are signalled with the
// syslog-style priority prefixes systemd understands natively:
// https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelNote
	levelWarn
	levelError
	levelCrit
)

type lineLogger struct {
	writer io.Writer
	logger *log.Logger
	prefix string
	flags  int
}

func newLineLogger(prefix string, flags int) *lineLogger {
	l := &lineLogger{writer: os.Stderr, prefix: prefix, flags: flags}
	l.logger = log.New(l.writer, prefix, flags)
	return l
}

func (l *lineLogger) setOutput(w io.Writer) {
	l.writer = w
	l.logger.SetOutput(w)
}

func (l *lineLogger) enabled() bool {
	return l.writer != io.Discard
}

func (l *lineLogger) output(calldepth int, s string) {
	if l.enabled() {
		l.logger.Output(calldepth, s)
	}
}

var levels = map[level]*lineLogger{
	levelDebug: newLineLogger("<7>[DEBUG]    ", 0),
	levelInfo:  newLineLogger("<6>[INFO]     ", 0),
	levelNote:  newLineLogger("<5>[NOTICE]   ", log.Lshortfile),
	levelWarn:  newLineLogger("<4>[WARNING]  ", log.Lshortfile),
	levelError: newLineLogger("<3>[ERROR]    ", log.Llongfile),
	levelCrit:  newLineLogger("<2>[CRITICAL] ", log.Llongfile),
}

var levelOrder = []level{levelDebug, levelInfo, levelNote, levelWarn, levelError, levelCrit}

var dateTime bool

// SetLevel discards output below the named level ("debug", "info", "notice",
// "warn", "err"/"fatal", "crit"). Unknown values fall back to "debug".
func SetLevel(name string) {
	idx := len(levelOrder)
	switch name {
	case "crit":
		idx = int(levelCrit)
	case "err", "fatal":
		idx = int(levelError)
	case "warn":
		idx = int(levelWarn)
	case "notice":
		idx = int(levelNote)
	case "info":
		idx = int(levelInfo)
	case "debug":
		idx = int(levelDebug)
	default:
		fmt.Fprintf(os.Stderr, "log: unknown level %q, defaulting to debug\n", name)
		idx = int(levelDebug)
	}

	for _, l := range levelOrder {
		if int(l) < idx {
			levels[l].setOutput(io.Discard)
		}
	}
}

// SetDateTime toggles date/time prefixes on every log line.
func SetDateTime(enabled bool) {
	dateTime = enabled
	for lvl, ll := range levels {
		flags := ll.flags
		if enabled {
			flags |= log.LstdFlags
		}
		ll.logger = log.New(ll.writer, ll.prefix, flags)
		levels[lvl] = ll
	}
}

func emit(lvl level, calldepth int, v ...interface{}) {
	levels[lvl].output(calldepth, fmt.Sprint(v...))
}

func emitf(lvl level, calldepth int, format string, v ...interface{}) {
	levels[lvl].output(calldepth, fmt.Sprintf(format, v...))
}

func Debug(v ...interface{})                 { emit(levelDebug, 3, v...) }
func Debugf(format string, v ...interface{}) { emitf(levelDebug, 3, format, v...) }

func Info(v ...interface{})                  { emit(levelInfo, 3, v...) }
func Infof(format string, v ...interface{})  { emitf(levelInfo, 3, format, v...) }
func Print(v ...interface{})                 { Info(v...) }
func Printf(format string, v ...interface{}) { Infof(format, v...) }

func Note(v ...interface{})                 { emit(levelNote, 3, v...) }
func Notef(format string, v ...interface{}) { emitf(levelNote, 3, format, v...) }

func Warn(v ...interface{})                 { emit(levelWarn, 3, v...) }
func Warnf(format string, v ...interface{}) { emitf(levelWarn, 3, format, v...) }

func Error(v ...interface{})                 { emit(levelError, 3, v...) }
func Errorf(format string, v ...interface{}) { emitf(levelError, 3, format, v...) }

func Crit(v ...interface{})                 { emit(levelCrit, 3, v...) }
func Critf(format string, v ...interface{}) { emitf(levelCrit, 3, format, v...) }

// Panic logs an error and panics, keeping the process (or just the calling
// goroutine, if recovered upstream) alive for inspection.
func Panic(v ...interface{}) {
	emit(levelError, 3, v...)
	panic(fmt.Sprint(v...))
}

func Panicf(format string, v ...interface{}) {
	emitf(levelError, 3, format, v...)
	panic(fmt.Sprintf(format, v...))
}

// Fatal logs an error and terminates the process. Reserved for the fatal
// error tier: config/store init failures, corrupt own-state, empty seed.
func Fatal(v ...interface{}) {
	emit(levelError, 3, v...)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	emitf(levelError, 3, format, v...)
	os.Exit(1)
}
