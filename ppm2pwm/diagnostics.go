package ppm2pwm

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

type LoggerSink struct {
	logger *MultiLogger
}

func NewLoggerSink(logger *MultiLogger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (sink *LoggerSink) WriteSnapshot(snapshot Snapshot) error {
	sink.logger.Info(snapshot.String())
	return nil
}

// SerialSink writes one text line per snapshot to a serial port, for viewing
// with a terminal program on another machine.
type SerialSink struct {
	port io.WriteCloser
}

func NewSerialSink(name string, baud int) (*SerialSink, error) {
	config := serial.Config{Name: name, Baud: baud, ReadTimeout: time.Millisecond * 0}
	port, err := serial.OpenPort(&config)
	if err != nil {
		return nil, fmt.Errorf("open serial port %v: %w", name, err)
	}
	return &SerialSink{port: port}, nil
}

func (sink *SerialSink) WriteSnapshot(snapshot Snapshot) error {
	_, err := fmt.Fprintf(sink.port, "%s\r\n", snapshot)
	return err
}

func (sink *SerialSink) Close() error {
	return sink.port.Close()
}

// Writes snapshots to every sink, returning the first error.
type multiSink []DiagnosticSink

func (sinks multiSink) WriteSnapshot(snapshot Snapshot) error {
	var first error
	for _, sink := range sinks {
		if err := sink.WriteSnapshot(snapshot); err != nil && first == nil {
			first = err
		}
	}
	return first
}
