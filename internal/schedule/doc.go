// Package schedule provides timer scheduling with first-class cancellation.
//
// Two trigger shapes are supported:
//   - one-shot delays via After(), each returning its own cancel func
//   - recurring jobs via Every(), driven by robfig/cron (cron specs,
//     descriptors like "@daily", or plain durations)
//
// Stop() cancels every outstanding timer and halts the cron runner, so a
// teardown can never leave a timer firing into dead components.
package schedule
