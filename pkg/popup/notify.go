package popup

import "github.com/entrhq/snapcrop/pkg/controller"

// Notifications queues user-visible notifications for the popup. It is
// handed to the controller before the popup is created.
type Notifications struct {
	ch chan controller.Notification
}

// NewNotifications creates an empty queue.
func NewNotifications() *Notifications {
	return &Notifications{ch: make(chan controller.Notification, 8)}
}

// Notify implements controller.Notifier. Notifications beyond the queue
// size are dropped.
func (n *Notifications) Notify(note controller.Notification) {
	select {
	case n.ch <- note:
	default:
	}
}
