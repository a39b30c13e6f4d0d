package service

import (
	"sync"
	"time"

	"proxyvote/models"
)

// BallotSession gates intake for one ballot: its submission window plus a
// manual close.
type BallotSession struct {
	window models.BallotWindow
	closed bool
	mu     sync.RWMutex
}

func NewBallotSession(window models.BallotWindow) *BallotSession {
	return &BallotSession{window: window}
}

func (bs *BallotSession) IsOpen(now time.Time) bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return !bs.closed && bs.window.Contains(now.Unix())
}

func (bs *BallotSession) Window() models.BallotWindow {
	return bs.window
}

func (bs *BallotSession) End() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.closed = true
}
