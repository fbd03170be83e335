// Package broadcast delivers domain events to entity coordinators after a
// mutation has been committed. Delivery is best effort: failures are logged
// and reported as a Result, never returned to the mutation path as errors.
package broadcast
