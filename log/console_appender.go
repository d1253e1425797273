package log

import "os"

// ConsoleAppender writes log lines straight to stdout with no buffering.
// Stateless, so one instance is safe for concurrent use.
type ConsoleAppender struct{}

// NewConsoleAppender creates a stdout appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (ca *ConsoleAppender) Write(buf []byte) (int, error) {
	return os.Stdout.Write(buf)
}

// Refresh is a no-op, every Write already reaches stdout.
func (ca *ConsoleAppender) Refresh() error {
	return nil
}

// Close is a no-op, stdout is not ours to close.
func (ca *ConsoleAppender) Close() error {
	return nil
}
