// Package log4gox log4go console writer colored by level.
package log4gox

import (
	"fmt"
	"io"
	"os"

	l4g "github.com/alecthomas/log4go"
)

/*
前景色            背景色           颜色
---------------------------------------
30                40              黑色
31                41              红色
32                42              绿色
33                43              黃色
34                44              蓝色
35                45              紫红色
36                46              青蓝色
37                47              白色
*/
var (
	levelColor   = [...]int{30, 30, 32, 37, 37, 33, 31, 34}
	levelStrings = [...]string{"FNST", "FINE", "DEBG", "TRAC", "INFO", "WARN", "EROR", "CRIT"}
)

const (
	colorSymbol = 0x1B
)

// ConsoleLogWriter l4g.LogWriter printing one line per record
type ConsoleLogWriter struct {
	records chan *l4g.LogRecord
	done    chan struct{}
}

// NewColorConsoleLogWriter colored writer on standard output
func NewColorConsoleLogWriter() *ConsoleLogWriter {
	return NewConsoleLogWriter(os.Stdout, true)
}

// NewConsoleLogWriter writer on out; color wraps each line in the level's
// terminal color.
func NewConsoleLogWriter(out io.Writer, color bool) *ConsoleLogWriter {
	w := &ConsoleLogWriter{
		records: make(chan *l4g.LogRecord, l4g.LogBufferLength),
		done:    make(chan struct{}),
	}
	go w.run(out, color)
	return w
}

func (w *ConsoleLogWriter) run(out io.Writer, color bool) {
	defer close(w.done)

	var timestr string
	var timestrAt int64

	for rec := range w.records {
		if at := rec.Created.UnixNano() / 1e9; at != timestrAt {
			timestr, timestrAt = rec.Created.Format("01/02/06 15:04:05"), at
		}
		if !color {
			fmt.Fprintf(out, "[%s] [%s] (%s) %s\n", timestr, levelStrings[rec.Level], rec.Source, rec.Message)
			continue
		}
		fmt.Fprintf(out, "%c[%dm[%s] [%s] (%s) %s\n%c[0m",
			colorSymbol,
			levelColor[rec.Level],
			timestr,
			levelStrings[rec.Level],
			rec.Source,
			rec.Message,
			colorSymbol)
	}
}

// LogWrite blocks when the buffer is full
func (w *ConsoleLogWriter) LogWrite(rec *l4g.LogRecord) {
	w.records <- rec
}

// Close flushes the buffered records and stops the writer
func (w *ConsoleLogWriter) Close() {
	close(w.records)
	<-w.done
}

// Setup replaces the global log4go filters with the colored console writer;
// debug lowers the level from INFO to DEBUG.
func Setup(debug bool) {
	level := l4g.INFO
	if debug {
		level = l4g.DEBUG
	}
	l4g.Close()
	l4g.AddFilter("console", level, NewColorConsoleLogWriter())
}
