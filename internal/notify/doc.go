// Package notify delivers change notifications to observers.
//
// A Change names the collection address that was modified and how many
// rows were affected. Changes are produced only after a mutation has been
// committed, and never with a count of zero.
//
// Notifier is the producer-facing interface. Three implementations ship
// here:
//
//   - Registry dispatches synchronously to in-process observers keyed by
//     address.
//   - Hub publishes to a juju pubsub SimpleHub so observers can run on
//     their own goroutines.
//   - Multi fans one Change out to several notifiers.
package notify
