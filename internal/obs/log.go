package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

const serviceName = "pitchvault-authz"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line logger. Tests swap its output to capture
// the JSON mirror of audit events.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one JSON line, stamping the service name so lines from
// co-located processes stay attributable. A marshal failure degrades to a
// fixed error line rather than dropping the event silently.
func LogRequest(entry map[string]any) {
	if _, ok := entry["service"]; !ok {
		entry["service"] = serviceName
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"service":"` + serviceName + `","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
