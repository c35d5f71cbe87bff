package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// https://misc.flogisoft.com/bash/tip_colors_and_formatting
const (
	BOLD = "\033[1m"
	DIM  = "\033[2m"

	FG_BLACK = "\033[30m"
	FG_WHITE = "\033[97m"

	BG_DGRAY  = "\033[100m"
	BG_RED    = "\033[41m"
	BG_GREEN  = "\033[42m"
	BG_YELLOW = "\033[43m"
	BG_LBLUE  = "\033[104m"

	RESET = "\033[0m"
)

// log level constants
const (
	DEBUG = iota
	INFO
	IMPORTANT
	WARNING
	ERROR
	FATAL
)

// levelKey carries our own level through logrus, which has no IMPORTANT level.
const levelKey = "lvl"

var (
	WithColors = true
	StdoutFile = "/dev/stdout"
	DateFormat = "2006-01-02 15:04:05"
	MinLevel   = INFO
	LogUTC     = true
	LogMicro   = false

	mutex  = &sync.RWMutex{}
	output io.Writer = os.Stdout
	logger = newLogger(os.Stdout)

	labels = map[int]string{
		DEBUG:     "DBG",
		INFO:      "INF",
		IMPORTANT: "IMP",
		WARNING:   "WAR",
		ERROR:     "ERR",
		FATAL:     "!!!",
	}
	colors = map[int]string{
		DEBUG:     DIM + FG_BLACK + BG_DGRAY,
		INFO:      FG_WHITE + BG_GREEN,
		IMPORTANT: FG_WHITE + BG_LBLUE,
		WARNING:   FG_WHITE + BG_YELLOW,
		ERROR:     FG_WHITE + BG_RED,
		FATAL:     FG_WHITE + BG_RED + BOLD,
	}
	logrusLevels = map[int]logrus.Level{
		DEBUG:     logrus.DebugLevel,
		INFO:      logrus.InfoLevel,
		IMPORTANT: logrus.InfoLevel,
		WARNING:   logrus.WarnLevel,
		ERROR:     logrus.ErrorLevel,
		FATAL:     logrus.ErrorLevel,
	}
	names = map[string]int{
		"debug":     DEBUG,
		"info":      INFO,
		"important": IMPORTANT,
		"warning":   WARNING,
		"warn":      WARNING,
		"error":     ERROR,
		"fatal":     FATAL,
	}
)

// lineFormatter renders entries as "[date] LBL message".
type lineFormatter struct{}

func (f *lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	level, ok := e.Data[levelKey].(int)
	if !ok {
		level = INFO
	}

	datefmt := DateFormat
	if LogMicro {
		datefmt = DateFormat + ".000000"
	}
	when := e.Time.UTC().Format(datefmt)
	if !LogUTC {
		when = e.Time.Local().Format(datefmt)
	}

	what := e.Message
	if !strings.HasSuffix(what, "\n") {
		what += "\n"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s", Dim("["+when+"]"), Wrap(" "+labels[level]+" ", colors[level]), what)
	return b.Bytes(), nil
}

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&lineFormatter{})
	return l
}

// Wrap wraps a text with effects
func Wrap(s, effect string) string {
	if WithColors {
		s = effect + s + RESET
	}
	return s
}

// Dim dims a text
func Dim(s string) string {
	return Wrap(s, DIM)
}

// Raw prints out a text without colors or labels.
func Raw(format string, args ...interface{}) {
	mutex.RLock()
	defer mutex.RUnlock()
	fmt.Fprintf(output, format, args...)
}

// SetOutput redirects the logs to w.
func SetOutput(w io.Writer) {
	mutex.Lock()
	defer mutex.Unlock()
	output = w
	logger.SetOutput(w)
}

// SetLogLevel sets the log level
func SetLogLevel(newLevel int) {
	mutex.Lock()
	defer mutex.Unlock()
	MinLevel = newLevel
}

// ParseLevel maps a level name (debug, info, warning...) to its constant.
func ParseLevel(name string) (int, error) {
	level, found := names[strings.ToLower(strings.TrimSpace(name))]
	if !found {
		return INFO, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// SetLogUTC configures UTC timestamps
func SetLogUTC(newLogUTC bool) {
	mutex.Lock()
	defer mutex.Unlock()
	LogUTC = newLogUTC
}

// SetFormat selects the line layout: "text" (default) or "json".
func SetFormat(name string) error {
	var f logrus.Formatter
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		f = &lineFormatter{}
	case "json":
		f = &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	default:
		return fmt.Errorf("unknown log format %q", name)
	}
	mutex.Lock()
	defer mutex.Unlock()
	logger.SetFormatter(f)
	return nil
}

// SetLogMicro configures microsecond timestamps
func SetLogMicro(newLogMicro bool) {
	mutex.Lock()
	defer mutex.Unlock()
	LogMicro = newLogMicro
}

// Log prints out a text with the given level and format
func Log(level int, format string, args ...interface{}) {
	mutex.RLock()
	defer mutex.RUnlock()
	if level < MinLevel {
		return
	}

	logger.WithField(levelKey, level).WithTime(time.Now()).Log(logrusLevels[level], fmt.Sprintf(format, args...))
}

// OpenFile opens a file to print out the logs
func OpenFile(logFile string) (err error) {
	if logFile == "" || logFile == StdoutFile {
		SetOutput(os.Stdout)
		return nil
	}

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		Error("Error opening log: %s %s", logFile, err)
		//fallback to stdout
		SetOutput(os.Stdout)
		return err
	}
	SetOutput(f)
	Important("Start writing logs to %s", logFile)

	return nil
}

// Close closes the current output file descriptor
func Close() {
	mutex.Lock()
	defer mutex.Unlock()
	if f, ok := output.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		f.Close()
	}
	output = os.Stdout
	logger.SetOutput(os.Stdout)
}

// Debug is the log level for debugging purposes
func Debug(format string, args ...interface{}) {
	Log(DEBUG, format, args...)
}

// Info is the log level for informative messages
func Info(format string, args ...interface{}) {
	Log(INFO, format, args...)
}

// Important is the log level for things that must pay attention
func Important(format string, args ...interface{}) {
	Log(IMPORTANT, format, args...)
}

// Warning is the log level for non-critical errors
func Warning(format string, args ...interface{}) {
	Log(WARNING, format, args...)
}

// Error is the log level for errors that should be corrected
func Error(format string, args ...interface{}) {
	Log(ERROR, format, args...)
}

// Fatal is the log level for errors that must be corrected before continue
func Fatal(format string, args ...interface{}) {
	Log(FATAL, format, args...)
	os.Exit(1)
}
