// Package logging provides the module-wide logging facade.
// Every package obtains a named logger via logger.GetLogger and the
// factory installed here controls format and level for all of them.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements logger.ILogger)
// --------------------------------------------------------------------------

// ozoneLogger implements the ILogger interface with custom formatting
type ozoneLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *ozoneLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *ozoneLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *ozoneLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *ozoneLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *ozoneLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *ozoneLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *ozoneLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-10s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the logger.Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &ozoneLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// packages lists every named logger used by the engine
var packages = []string{
	"ozone",
	"bots",
	"zone",
	"comm",
	"scheme",
	"cmd",
}

// InitLoggers installs the custom factory and sets the level for all
// engine loggers. Must be called before the first logger.GetLogger.
func InitLoggers(level string) error {
	parsed, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// Set as the global logger factory
	logger.SetLoggerFactory(CreateLogger)

	for _, pkg := range packages {
		logger.GetLogger(pkg).SetLevel(parsed)
	}
	return nil
}
