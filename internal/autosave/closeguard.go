package autosave

import "log"

// CloseGuard runs on shutdown signals and forces a final flush of any
// pending write before the process is allowed to exit.
type CloseGuard struct {
	scheduler *Scheduler
}

func NewCloseGuard(s *Scheduler) *CloseGuard {
	return &CloseGuard{scheduler: s}
}

// OnCloseRequested flushes the pending write, if any. A flush failure is
// logged and shutdown proceeds anyway; blocking exit would trap the user.
func (g *CloseGuard) OnCloseRequested() {
	if !g.scheduler.HasPending() {
		return
	}
	log.Printf("[closeguard] flushing pending write before shutdown")
	if _, err := g.scheduler.FlushNow(); err != nil {
		log.Printf("[closeguard] final flush failed, proceeding with shutdown: %v", err)
	}
}
