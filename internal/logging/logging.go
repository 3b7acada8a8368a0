// Package logging wires the simulator's components to a shared
// logrus logger, following ehrlich-b-go-ublk's Options.Logger
// injection pattern: the command builds one logger and hands it, or an
// Entry scoped by ForCore, to whatever logs, rather than keeping a
// package-level global.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the base logger used by cmd/x86fetch-sim. Level and
// format are deliberately simple — this is a simulator, not a
// service, so there is no need for sampling or remote sinks.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{FullTimestamp: false}
	if verbose {
		log.SetLevel(logrus.TraceLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// ForCore scopes a logger to a single core/thread pair, the
// granularity at which the fetch stage emits trace lines.
func ForCore(log *logrus.Logger, core, thread int) *logrus.Entry {
	return log.WithFields(logrus.Fields{"core": core, "thread": thread})
}
