// Package eventbus provides an in-process, non-blocking fan-out bus used to
// broadcast session state transitions to observers such as metrics and logs.
package eventbus
