// Package queue provides block requests and the bounded FIFO queue workers
// share to hand them out. A request popped from the queue is delivered to
// exactly one worker; pushes block once the queue is full.
package queue
