package gatt

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// recoverToLog must be deferred directly.
func recoverToLog(log logrus.FieldLogger) {
	if x := recover(); x != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("run time panic: %v", x)
	}
}

func runToLog(log logrus.FieldLogger, f func()) {
	defer recoverToLog(log)
	f()
}
