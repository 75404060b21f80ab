// Package common provides structured logging infrastructure for erpcache services.
// Error-level messages are routed to stderr and everything else to stdout so that
// container log collectors can treat the two streams differently.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted logrus output to stderr for error-level
// entries and stdout for everything else.
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide logrus instance; services should derive
// ContextLoggers from it rather than creating ad-hoc logrus loggers.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
