// SPDX-License-Identifier: MIT
package transport

import (
	applog "pitchtrack/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	if msg, ok := data.(PitchMessage); ok {
		applog.Debugf("LOG_TRANSPORT: window %d pitch %.2f Hz %s %+.0fc", msg.Window, msg.Pitch, msg.Note, msg.Cents)
		return nil
	}
	applog.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
