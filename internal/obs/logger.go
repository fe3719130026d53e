package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Logger emits one JSON object per line. Field maps are copied before the
// level/ts stamps are added, so callers may reuse their maps.
type Logger struct {
	l *log.Logger
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout)
}

func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{
		l: log.New(w, "", 0),
	}
}

func (lg *Logger) Info(fields map[string]interface{}) {
	lg.emit("info", fields)
}

func (lg *Logger) Error(fields map[string]interface{}) {
	lg.emit("error", fields)
}

func (lg *Logger) emit(level string, fields map[string]interface{}) {
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["level"] = level
	out["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	b, _ := json.Marshal(out)
	lg.l.Println(string(b))
}
