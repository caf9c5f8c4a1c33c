package saw

// daemon is the loop-owned collection of detached sinks: chains whose
// ownership was handed to the loop itself via [Detach]. It scavenges dead
// sinks opportunistically and holds the installable error handler invoked
// on critical failure; the default is "silently drop" (plus a debug log),
// since detached chains have no user-visible failure channel.
type daemon struct {
	loop    *Loop
	sinks   []*SinkHandle
	onError func(Error)
}

func newDaemon(loop *Loop) *daemon {
	return &daemon{loop: loop}
}

func (d *daemon) add(s *SinkHandle) {
	d.sinks = append(d.sinks, s)
}

func (d *daemon) len() int {
	n := 0
	for _, s := range d.sinks {
		if sn, ok := s.node.(interface{ isDead() bool }); !ok || !sn.isDead() {
			n++
		}
	}
	return n
}

// scavenge removes dead sinks from the collection, returning how many were
// removed.
func (d *daemon) scavenge() int {
	live := d.sinks[:0]
	removed := 0
	for _, s := range d.sinks {
		if sn, ok := s.node.(interface{ isDead() bool }); ok && sn.isDead() {
			removed++
			continue
		}
		live = append(live, s)
	}
	d.sinks = live
	return removed
}

// SetDaemonErrorHandler installs the handler invoked when a detached
// chain's sink terminates on a critical error. The default behavior (nil
// handler) logs at debug level and otherwise drops the error.
func (l *Loop) SetDaemonErrorHandler(h func(Error)) {
	l.daemon.onError = h
}

// Detach transfers ownership of s to the loop's daemon collection: the
// loop keeps it alive (and draining) for the loop's own lifetime, running
// the daemon's error handler (default: log and drop) if it terminates.
func Detach(s *SinkHandle) {
	loop := s.loop
	if sn, ok := s.node.(interface{ setOnDone(func(Error)) }); ok {
		sn.setOnDone(func(err Error) {
			loop.daemon.scavenge()
			if loop.daemon.onError != nil {
				loop.daemon.onError(err)
				return
			}
			loop.logger.Log(LogEntry{
				Level:    LevelDebug,
				Category: "daemon",
				Message:  "detached chain terminated",
				Err:      err,
			})
		})
	}
	loop.daemon.add(s)
}
