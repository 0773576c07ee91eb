package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Access log lines and audit
// trail lines share it, so one stream carries the whole request story.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest writes one JSON access log line. The timestamp and line type
// are stamped here; callers supply only the request fields.
func LogRequest(fields map[string]any) {
	entry := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["type"] = "access"

	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"type":"access","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(data))
}
