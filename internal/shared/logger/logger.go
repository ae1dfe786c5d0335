package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Level — уровень логирования: DEBUG, INFO, WARN, ERROR
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

type ErrObj struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack,omitempty"`
}

// Entry — одна JSON-строка лога
type Entry struct {
	Timestamp  string         `json:"timestamp"` // RFC3339 UTC
	Level      string         `json:"level"`
	Service    string         `json:"service"`
	Action     string         `json:"action"` // snake_case, например payment_registered
	Message    string         `json:"message"`
	Hostname   string         `json:"hostname"`
	RequestID  string         `json:"request_id,omitempty"`
	RideID     string         `json:"ride_id,omitempty"`
	PaymentID  string         `json:"payment_id,omitempty"`
	PayoutID   string         `json:"payout_id,omitempty"`
	Error      *ErrObj        `json:"error,omitempty"`
	Additional map[string]any `json:"additional,omitempty"`
}

// reserved — ключи, которые нельзя перезаписать через Additional
var reserved = map[string]struct{}{
	"timestamp": {}, "level": {}, "service": {}, "action": {}, "message": {},
	"hostname": {}, "request_id": {}, "ride_id": {}, "payment_id": {}, "payout_id": {},
}

type Logger struct {
	service  string
	minLevel Level
	hostname string
	pretty   bool
	caller   bool

	outWriter io.Writer
	errWriter io.Writer
	mu        sync.Mutex

	closers []io.Closer
}

// NewLogger пишет в stdout/stderr с уровнем INFO
func NewLogger(service string) *Logger {
	h, _ := os.Hostname()
	return &Logger{
		service:   service,
		minLevel:  LevelInfo,
		hostname:  h,
		pretty:    prettyFromEnv(),
		caller:    true,
		outWriter: os.Stdout,
		errWriter: os.Stderr,
	}
}

// New пишет все уровни в один writer. Используется в тестах с io.Discard.
func New(service string, w io.Writer, min Level) *Logger {
	h, _ := os.Hostname()
	return &Logger{
		service:   service,
		minLevel:  min,
		hostname:  h,
		outWriter: w,
		errWriter: w,
	}
}

// NewLoggerWithOptions — уровень из строки и опциональная директория:
// если fileDir != "", логи дублируются в info.log и error.log.
func NewLoggerWithOptions(service, minLevelStr, fileDir string) (*Logger, error) {
	l := NewLogger(service)
	l.minLevel = ParseLevel(minLevelStr)
	if fileDir == "" {
		return l, nil
	}

	if err := os.MkdirAll(fileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	infoF, err := os.OpenFile(filepath.Join(fileDir, "info.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open info log: %w", err)
	}
	errF, err := os.OpenFile(filepath.Join(fileDir, "error.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		_ = infoF.Close()
		return nil, fmt.Errorf("open error log: %w", err)
	}

	l.outWriter = io.MultiWriter(os.Stdout, infoF)
	l.errWriter = io.MultiWriter(os.Stderr, infoF, errF)
	l.closers = []io.Closer{infoF, errF}
	return l, nil
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.closers {
		_ = c.Close()
	}
	l.closers = nil
}

func (l *Logger) Debug(e Entry) { l.log(LevelDebug, e, nil) }
func (l *Logger) Info(e Entry)  { l.log(LevelInfo, e, nil) }
func (l *Logger) Warn(e Entry)  { l.log(LevelWarn, e, nil) }
func (l *Logger) Error(e Entry) { l.log(LevelError, e, nil) }

// Fatal пишет ERROR со стеком и завершает процесс
func (l *Logger) Fatal(e Entry) {
	if e.Error == nil {
		e.Error = &ErrObj{Msg: e.Message}
	}
	if e.Error.Stack == "" {
		e.Error.Stack = string(debug.Stack())
	}
	l.log(LevelError, e, nil)
	os.Exit(1)
}

// WithFields возвращает логгер, подмешивающий base в каждую запись
func (l *Logger) WithFields(base map[string]any) *ContextLogger {
	return &ContextLogger{parent: l, base: base}
}

// WithPayment — контекстный логгер для операций над платежом
func (l *Logger) WithPayment(rideID, paymentID string) *ContextLogger {
	base := map[string]any{}
	if rideID != "" {
		base["ride_id"] = rideID
	}
	if paymentID != "" {
		base["payment_id"] = paymentID
	}
	return &ContextLogger{parent: l, base: base}
}

type ContextLogger struct {
	parent *Logger
	base   map[string]any
}

func (c *ContextLogger) Debug(e Entry) { c.parent.log(LevelDebug, e, c.base) }
func (c *ContextLogger) Info(e Entry)  { c.parent.log(LevelInfo, e, c.base) }
func (c *ContextLogger) Warn(e Entry)  { c.parent.log(LevelWarn, e, c.base) }
func (c *ContextLogger) Error(e Entry) { c.parent.log(LevelError, e, c.base) }

func (l *Logger) log(level Level, e Entry, base map[string]any) {
	if level < l.minLevel {
		return
	}

	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	e.Level = level.String()
	if e.Service == "" {
		e.Service = l.service
	}
	if e.Hostname == "" {
		e.Hostname = l.hostname
	}
	e = merge(e, base)

	if l.caller {
		if e.Additional == nil {
			e.Additional = make(map[string]any)
		}
		if _, ok := e.Additional["caller"]; !ok {
			if _, file, line, ok := runtime.Caller(2); ok {
				e.Additional["caller"] = fmt.Sprintf("%s:%d", filepath.Base(file), line)
			}
		}
	}

	var (
		b   []byte
		err error
	)
	if l.pretty {
		b, err = json.MarshalIndent(e, "", "  ")
	} else {
		b, err = json.Marshal(e)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		fmt.Fprintf(l.errWriter, `{"timestamp":"%s","level":"ERROR","service":"%s","message":"failed to marshal log: %v"}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), l.service, err)
		return
	}

	w := l.outWriter
	if level == LevelError {
		w = l.errWriter
	}
	_, _ = w.Write(append(b, '\n'))
}

func merge(e Entry, base map[string]any) Entry {
	if len(base) == 0 {
		return e
	}
	if e.RequestID == "" {
		e.RequestID = str(base["request_id"])
	}
	if e.RideID == "" {
		e.RideID = str(base["ride_id"])
	}
	if e.PaymentID == "" {
		e.PaymentID = str(base["payment_id"])
	}
	if e.PayoutID == "" {
		e.PayoutID = str(base["payout_id"])
	}
	for k, v := range base {
		if _, ok := reserved[k]; ok {
			continue
		}
		if e.Additional == nil {
			e.Additional = map[string]any{}
		}
		if _, exists := e.Additional[k]; !exists {
			e.Additional[k] = v
		}
	}
	return e
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func prettyFromEnv() bool {
	return strings.EqualFold(os.Getenv("LOG_PRETTY"), "true")
}
