package telemetry

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Status is a step in the life of a single keeper poll.
type Status int

const (
	Checked Status = iota
	NotDue
	NoFunds
	NoOp
	Performed
	Failed
)

func (s Status) String() string {
	switch s {
	case Checked:
		return "checked"
	case NotDue:
		return "not_due"
	case NoFunds:
		return "no_funds"
	case NoOp:
		return "noop"
	case Performed:
		return "performed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	ServiceName    = "prize-payout"
	LogPkgStdFlags = log.Ldate | log.Ltime | log.Lshortfile
)

func WrapLogger(logger *log.Logger, ns string) *log.Logger {
	return log.New(logger.Writer(), fmt.Sprintf("[%s | %s] ", ServiceName, ns), LogPkgStdFlags)
}

func WrapTelemetryLogger(logger *Logger, ns string) *Logger {
	return &Logger{
		Logger:    WrapLogger(logger.Logger, ns),
		mu:        logger.mu,
		collector: logger.collector,
	}
}

// Logger pairs a namespaced log with an audit collector receiving one JSON
// line per keeper poll.
type Logger struct {
	*log.Logger
	// mu is shared by wrapped loggers writing to the same collector
	mu        *sync.Mutex
	collector io.Writer
}

func NewTelemetryLogger(logger *log.Logger, collector io.Writer) *Logger {
	if collector == nil {
		collector = io.Discard
	}

	return &Logger{
		Logger:    logger,
		mu:        &sync.Mutex{},
		collector: collector,
	}
}

type record struct {
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Time   string    `json:"time"`
}

// Collect writes an audit record for key observed at at.
func (l *Logger) Collect(key string, at time.Time, status Status, detail string) error {
	bts, err := json.Marshal(record{
		Key:    key,
		At:     at,
		Status: status.String(),
		Detail: detail,
		Time:   time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.collector.Write(append(bts, '\n'))

	return err
}

func (l *Logger) GetLogger() *log.Logger {
	return l.Logger
}
