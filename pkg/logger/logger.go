package logger

import (
	"io"
	"log"
	"os"
)

type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
	debug       bool
}

func New() *Logger {
	return &Logger{
		infoLogger:  log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile),
		debugLogger: log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile),
		debug:       os.Getenv("LOG_DEBUG") == "true",
	}
}

// SetOutput redirects every level to w. Tests use it with io.Discard.
func (l *Logger) SetOutput(w io.Writer) {
	l.infoLogger.SetOutput(w)
	l.warnLogger.SetOutput(w)
	l.errorLogger.SetOutput(w)
	l.debugLogger.SetOutput(w)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.infoLogger.Printf(format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.warnLogger.Printf(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLogger.Printf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if !l.debug {
		return
	}
	l.debugLogger.Printf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.errorLogger.Printf(format, v...)
	os.Exit(1)
}

// Global logger instance
var GlobalLogger = New()

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GlobalLogger.Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}

func SetOutput(w io.Writer) {
	GlobalLogger.SetOutput(w)
}
