// Package actuator terminates a process identified as stuck in a read
// retry loop. Termination is a SIGINT (interruptible, the process may
// handle it), never SIGKILL, and is fire-and-forget: the actuator does not
// wait for the process to die and never retries.
package actuator

import (
	"context"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/readguard/readguard/database"
	"github.com/readguard/readguard/platform"
	"github.com/readguard/readguard/sigma"
	"github.com/readguard/readguard/tracker"
)

var terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "readguard_terminations_total",
	Help: "Termination requests issued, by detection kind.",
}, []string{"kind"})

// Actuator implements tracker.Terminator.
type Actuator struct {
	diag  *logrus.Logger
	db    *database.DB    // nil disables persistence
	rules *sigma.Detector // nil disables rule matching

	// kill is swappable for tests.
	kill func(pid int, sig syscall.Signal) error
}

func New(diag *logrus.Logger, db *database.DB, rules *sigma.Detector) *Actuator {
	return &Actuator{
		diag:  diag,
		db:    db,
		rules: rules,
		kill:  unix.Kill,
	}
}

// Terminate sends SIGINT to the detected process and emits the diagnostic
// record. The signal and log happen inline; persistence and rule matching
// move to a goroutine so the event path never blocks on the database.
func (a *Actuator) Terminate(d tracker.Detection) {
	if err := a.kill(int(d.Pid), unix.SIGINT); err != nil {
		// The process may have exited between detection and signal; that is
		// the outcome we wanted anyway.
		a.diag.WithError(err).WithField("pid", d.Pid).Warn("termination signal failed")
	}

	terminationsTotal.WithLabelValues(string(d.Kind)).Inc()

	username := platform.GetUsernameFromUID(d.UID)
	entry := a.diag.WithFields(logrus.Fields{
		"time": d.Time.Format(time.RFC3339Nano),
		"kind": string(d.Kind),
		"pid":  d.Pid,
		"tid":  d.Tid,
		"uid":  d.UID,
		"user": username,
		"comm": d.Comm,
	})
	if d.Kind == tracker.KindIOError {
		entry = entry.WithField("errno", unix.ErrnoName(d.Errno))
	}
	entry.Error("stuck read loop detected, termination requested")

	if a.db != nil || a.rules != nil {
		go a.record(d, username)
	}
}

func (a *Actuator) record(d tracker.Detection, username string) {
	var matches []string
	if a.rules != nil {
		matches = a.rules.Check(context.Background(), map[string]interface{}{
			"Kind":      string(d.Kind),
			"ProcessId": int(d.Pid),
			"ThreadId":  int(d.Tid),
			"User":      username,
			"Image":     d.Comm,
			"Errno":     errnoName(d),
		})
		for _, title := range matches {
			a.diag.WithFields(logrus.Fields{
				"pid":  d.Pid,
				"rule": title,
			}).Warn("detection matched Sigma rule")
		}
	}

	if a.db == nil {
		return
	}
	rec := &database.DetectionRecord{
		Timestamp:   d.Time,
		Kind:        string(d.Kind),
		PID:         d.Pid,
		TID:         d.Tid,
		UID:         d.UID,
		Username:    username,
		Comm:        d.Comm,
		Errno:       errnoName(d),
		RuleMatches: strings.Join(matches, ","),
	}
	if err := a.db.InsertDetection(rec); err != nil {
		a.diag.WithError(err).Error("failed to persist detection record")
	}
}

func errnoName(d tracker.Detection) string {
	if d.Kind != tracker.KindIOError {
		return ""
	}
	return unix.ErrnoName(d.Errno)
}
