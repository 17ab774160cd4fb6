package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"nanoqa-pipeline/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Fields map[string]interface{}

type Logger struct {
	log     *logrus.Logger
	fields  logrus.Fields
	rotator *lumberjack.Logger
}

func New(cfg config.LogConfig) (*Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q : %w", cfg.Level, err)
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	logger := &Logger{
		log:    log,
		fields: logrus.Fields{},
	}

	switch cfg.Output {
	case "", "stdout":
		log.SetOutput(os.Stdout)
	case "stderr":
		log.SetOutput(os.Stderr)
	default:
		logger.rotator = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		log.SetOutput(logger.rotator)
	}

	return logger, nil
}

func (logger *Logger) WithFields(fields Fields) *Logger {
	merged := make(logrus.Fields, len(logger.fields)+len(fields))
	for k, v := range logger.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &Logger{
		log:     logger.log,
		fields:  merged,
		rotator: logger.rotator,
	}
}

func (logger *Logger) WithError(err error) *Logger {
	return logger.WithFields(Fields{"error": err})
}

func (logger *Logger) Debug(msg string, keysAndValues ...interface{}) {
	logger.entry(keysAndValues).Debug(msg)
}

func (logger *Logger) Info(msg string, keysAndValues ...interface{}) {
	logger.entry(keysAndValues).Info(msg)
}

func (logger *Logger) Warn(msg string, keysAndValues ...interface{}) {
	logger.entry(keysAndValues).Warn(msg)
}

func (logger *Logger) Error(msg string, keysAndValues ...interface{}) {
	logger.entry(keysAndValues).Error(msg)
}

// LogService records one operation against a named service, with its duration
// and outcome. Used by every external collaborator (endpoints, cache).
func (logger *Logger) LogService(service, operation string, duration time.Duration, fields map[string]interface{}, err error) {
	entry := logger.log.WithFields(logger.fields).WithFields(logrus.Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})

	for k, v := range fields {
		entry = entry.WithField(k, v)
	}

	if err != nil {
		entry.WithError(err).Error("Service Operation Failed")
		return
	}
	entry.Info("Service Operation Completed")
}

// LogStage records a single pipeline stage run for one question.
func (logger *Logger) LogStage(stage, question string, duration time.Duration, err error) {
	entry := logger.log.WithFields(logger.fields).WithFields(logrus.Fields{
		"stage":       stage,
		"question":    question,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("Pipeline Stage Failed")
		return
	}
	entry.Debug("Pipeline Stage Completed")
}

// LogPipeline records a pipeline invocation lifecycle event.
func (logger *Logger) LogPipeline(requestID, question, event string, duration time.Duration, err error) {
	entry := logger.log.WithFields(logger.fields).WithFields(logrus.Fields{
		"request_id":  requestID,
		"question":    question,
		"event":       event,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("Pipeline Event")
		return
	}
	entry.Info("Pipeline Event")
}

func (logger *Logger) Close() error {
	if logger.rotator != nil {
		return logger.rotator.Close()
	}
	return nil
}

func (logger *Logger) entry(keysAndValues []interface{}) *logrus.Entry {
	entry := logger.log.WithFields(logger.fields)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		entry = entry.WithField(key, keysAndValues[i+1])
	}
	if len(keysAndValues)%2 != 0 {
		entry = entry.WithField("extra", keysAndValues[len(keysAndValues)-1])
	}

	return entry
}
