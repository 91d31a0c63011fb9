package progress

import "github.com/kirillkom/chapterflow/internal/core/domain"

// Observer receives session and delivery measurements.
type Observer interface {
	SessionOpened()
	SessionClosed()
	EventDelivered(kind domain.EventKind)
	EventDropped(kind domain.EventKind, reason string)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                        {}
func (nopObserver) SessionClosed()                        {}
func (nopObserver) EventDelivered(domain.EventKind)       {}
func (nopObserver) EventDropped(domain.EventKind, string) {}
