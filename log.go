package gows

import "fmt"

// Log is the diagnostic logging seam used throughout the accept and
// handshake paths. Applications supply their own via WithLogger; the
// default just prints.
type Log interface {
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger satisfies Log with fmt.Printf. It's what a Server uses if
// WithLogger is never called.
type DefaultLogger struct{}

func (DefaultLogger) Infof(format string, args ...interface{}) {
	fmt.Printf("[Info] "+format+"\n", args...)
}

func (DefaultLogger) Debugf(format string, args ...interface{}) {
	fmt.Printf("[Debug] "+format+"\n", args...)
}

func (DefaultLogger) Errorf(format string, args ...interface{}) {
	fmt.Printf("[Error] "+format+"\n", args...)
}
