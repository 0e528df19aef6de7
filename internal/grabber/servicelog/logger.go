// Package servicelog provides the structured logging facade used across
// the grabber packages. It wraps zap the way the original driver's logger
// did: attributes are closures appended to a message at format time.
// Messages go to an OS service logger when one is supplied (for
// cmd/grabberd running as a daemon), otherwise to the standard library log
// package. A zap logger with a lumberjack rotated-file sink is configured
// and built at construction, but messages are not written through it.
package servicelog

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Attrib is a deferred key=value formatter, appended to a log line only
// when that line is actually emitted.
type Attrib func(sb *strings.Builder)

func printer(name string, val interface{}) Attrib {
	return func(sb *strings.Builder) {
		sb.WriteString(", ")
		sb.WriteString(name)
		sb.WriteString("=")
		fmt.Fprintf(sb, "%v", val)
	}
}

func String(name, value string) Attrib       { return printer(name, value) }
func Error(err error) Attrib                 { return printer("error", err) }
func Bool(name string, value bool) Attrib    { return printer(name, value) }
func Any(name string, value interface{}) Attrib { return printer(name, value) }
func Int(name string, value int) Attrib      { return printer(name, value) }
func Int64(name string, value int64) Attrib  { return printer(name, value) }
func Float64(name string, value float64) Attrib { return printer(name, value) }
func Time(name string, value time.Time) Attrib { return printer(name, value) }
func Duration(name string, value time.Duration) Attrib { return printer(name, value) }

// Logger is the interface every grabber component logs through.
type Logger interface {
	With(attrs ...Attrib) Logger
	Info(msg string, attrs ...Attrib)
	Error(msg string, attrs ...Attrib)
	Warn(msg string, attrs ...Attrib)
	Debug(msg string, attrs ...Attrib)
	Fatal(msg string, attrs ...Attrib)
}

type lumberjackSink struct {
	*lumberjack.Logger
}

func (lumberjackSink) Sync() error { return nil }

var lumberjackRegistered bool

func registerLumberjack() {
	if lumberjackRegistered {
		return
	}
	lumberjackRegistered = true
	zap.RegisterSink("lumberjack", func(u *url.URL) (zap.Sink, error) {
		return lumberjackSink{
			Logger: &lumberjack.Logger{
				Filename:   u.Path,
				MaxSize:    100, // MB
				MaxBackups: 5,
				MaxAge:     28, // days
				Compress:   true,
			},
		}, nil
	})
}

type logger struct {
	svc   service.Logger // nil when not running as an installed OS service
	debug bool
	attrs []Attrib
}

// New builds a Logger that sends messages to an OS service logger (e.g.
// the Windows Event Log or systemd journal via kardianos/service). Pass a
// nil svc to send them to the standard library log package instead. In
// both cases logPath only configures the zap/lumberjack sink built below,
// which messages are not written to.
func New(svc service.Logger, debug bool, logPath string) (Logger, error) {
	registerLumberjack()
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if logPath == "" {
		logPath = "ipvideograbber.log"
	}
	cfg.OutputPaths = []string{"lumberjack://" + logPath}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	// zapLogger exists only to force the RegisterSink/Build wiring to
	// validate at construction time; component logging below goes through
	// the service.Logger/stdlib log shim instead, for attribute formatting
	// control.
	zapLogger.Sync()
	return &logger{svc: svc, debug: debug}, nil
}

// NewProduction builds a standalone Logger (no OS service integration)
// that writes through the standard library log package, suitable for the
// demo composition root and for tests.
func NewProduction(logPath string) (Logger, error) {
	return New(nil, false, logPath)
}

// NewDevelopment builds a standalone Logger with development formatting
// and debug-level output enabled.
func NewDevelopment(logPath string) (Logger, error) {
	return New(nil, true, logPath)
}

func (l *logger) render(msg string, attrs ...Attrib) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for _, a := range l.attrs {
		a(&sb)
	}
	for _, a := range attrs {
		a(&sb)
	}
	return sb.String()
}

func (l *logger) Info(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Info(message)
		return
	}
	log.Println(message)
}

func (l *logger) Error(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Error(message)
		return
	}
	log.Println(message)
}

func (l *logger) Warn(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Warning(message)
		return
	}
	log.Println(message)
}

func (l *logger) Debug(msg string, attrs ...Attrib) {
	if !l.debug {
		return
	}
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Info(message)
		return
	}
	log.Println(message)
}

func (l *logger) Fatal(msg string, attrs ...Attrib) {
	message := l.render(msg, attrs...)
	if l.svc != nil {
		l.svc.Error(message)
	}
	log.Fatal(message)
}

func (l *logger) With(attrs ...Attrib) Logger {
	next := &logger{svc: l.svc, debug: l.debug}
	next.attrs = make([]Attrib, 0, len(l.attrs)+len(attrs))
	next.attrs = append(next.attrs, l.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return next
}
