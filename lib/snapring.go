package snapring

import "time"

// SnapRing drives one backup invocation: disk selection, cycle state,
// retention and the imaging call.
type SnapRing struct {
	Config   *Config
	Imager   Imager
	Reporter Reporter
	Recorder *SessionRecorder
	DryRun   bool

	// SessionID names this invocation's log and summary artifacts.
	SessionID string

	nowFn func() time.Time
}

func New(cfg *Config, imager Imager) *SnapRing {
	return &SnapRing{
		Config:    cfg,
		Imager:    imager,
		SessionID: time.Now().Format("20060102150405"),
		nowFn:     time.Now,
	}
}

func (s *SnapRing) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now()
}
