package engine

import "errors"

// waitForWork moves worker from Running to Idle. The last worker to go idle
// is elected and advances the tag; every other worker parks on its wake
// semaphore until an elected worker releases it.
func (s *Scheduler) waitForWork(worker int) {
	s.observer.WorkerIdle(worker, s.CurrentTag())

	if int(s.idle.Add(1)) == s.workers && s.advance(worker) {
		return
	}
	s.wake[worker].Acquire()
}

// advance runs the election critical section. Reports whether the elected
// worker should resume interpreting; false means its own stream is idle at
// the new tag and it must park like the others.
func (s *Scheduler) advance(elected int) bool {
	s.mu.Lock()
	if s.stop.Load() {
		s.mu.Unlock()
		return true
	}

	prev := s.CurrentTag()
	tr := &Transition{s: s, current: prev.Tag, next: prev.Tag.Delay(0), schedule: s.ActiveSchedule()}

	terminal, err := s.advancer.AdvanceTag(tr)
	if err == nil && !terminal {
		err = tr.err
	}
	if err != nil {
		var re *RuntimeError
		if !errors.As(err, &re) {
			re = newError(ErrCodeAdvanceFailed, "tag advancer failed")
			re.Err = err
		}
		re.Worker = elected
		s.setErr(re)
		s.logger.Error("tag advance failed, stopping", "worker", elected, "error", re)
		terminal = true
	}

	if terminal {
		s.stop.Store(true)
		s.mu.Unlock()
		s.logger.Debug("terminal tag reached", "tag", prev.Tag, "ordinal", prev.Ordinal, "worker", elected)
		for w := range s.wake {
			if w != elected {
				s.wake[w].Release()
			}
		}
		return true
	}

	s.active.Store(int64(tr.schedule))
	s.ResetProgramCounters()
	info := TagInfo{Tag: tr.next, Ordinal: s.ordinal.Next(), Schedule: tr.schedule}
	s.current.Store(&info)

	// Workers whose new stream is a lone Stop stay parked and count as idle
	// already. If every stream is idle the elected worker keeps running so
	// that it re-enters the barrier and advances again.
	sched := s.program.Schedules[tr.schedule]
	parked := 0
	for w := range s.parked {
		s.parked[w] = sched.Streams[w].IsIdle()
		if s.parked[w] {
			parked++
		}
	}
	if parked == s.workers {
		s.parked[elected] = false
		parked--
	}
	resume := !s.parked[elected]

	release := make([]int, 0, s.workers-parked)
	for w, p := range s.parked {
		if w != elected && !p {
			release = append(release, w)
		}
	}

	s.idle.Store(int64(parked))
	s.observer.TagAdvanced(info)
	s.mu.Unlock()

	s.logger.Debug("tag advanced",
		"tag", info.Tag,
		"ordinal", info.Ordinal,
		"schedule", sched.Name,
		"parked", parked,
		"worker", elected,
	)

	for _, w := range release {
		s.wake[w].Release()
	}
	return resume
}

// fail stops the run after a protocol violation. Every wake semaphore and
// every dependency semaphore gets one permit per worker, so no worker stays
// blocked in a Wait or at the barrier; each sees the stop flag and exits.
func (s *Scheduler) fail(worker int, err error) {
	s.setErr(err)
	s.mu.Lock()
	already := s.stop.Swap(true)
	s.mu.Unlock()
	if already {
		return
	}
	s.logger.Error("scheduler stopped on fatal error", "worker", worker, "error", err)
	for _, sem := range s.wake {
		sem.ReleaseN(s.workers)
	}
	for _, sem := range s.sems {
		sem.ReleaseN(s.workers)
	}
}
