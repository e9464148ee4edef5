// Package notification implements the in-app notification engine: a bounded
// most-recent-first store with duplicate suppression and automated-rate
// limiting, a fixed vocabulary of action-triggered templates, and a
// background emitter that drops random tips and alerts on a timer.
package notification
