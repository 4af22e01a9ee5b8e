package utils

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Color is an ANSI escape prefix applied to a child process's output
// lines.
type Color string

const colorReset = "\033[0m"

// Wrap returns [text] colored with [c].
func (c Color) Wrap(text string) string {
	return string(c) + text + colorReset
}

var supportedColors = []Color{
	"\033[36m", // cyan
	"\033[94m", // light blue
	"\033[37m", // light gray
	"\033[92m", // light green
	"\033[95m", // light purple
	"\033[96m", // light cyan
	"\033[35m", // purple
	"\033[33m", // yellow
}

// ColorPicker allows assigning a distinct color to each node process.
type ColorPicker interface {
	NextColor() Color
}

type colorPicker struct {
	lock sync.Mutex
	used int
}

func NewColorPicker() ColorPicker {
	return &colorPicker{}
}

// NextColor returns the next color. If all supported colors have been
// assigned, it starts over with the first one.
func (c *colorPicker) NextColor() Color {
	c.lock.Lock()
	defer c.lock.Unlock()

	pick := supportedColors[c.used%len(supportedColors)]
	c.used++
	return pick
}

// ColorAndPrepend scans [reader] line by line and writes each line to
// [writer] colored and prefixed with the node name. The line content
// itself is passed through unmodified.
func ColorAndPrepend(reader io.Reader, writer io.Writer, nodeName string, color Color) {
	scanner := bufio.NewScanner(reader)
	go func() {
		// No goroutine control needed: when the child exits, Scan hits
		// EOF and the routine terminates.
		for scanner.Scan() {
			line := color.Wrap(fmt.Sprintf("[%s] %s\n", nodeName, scanner.Text()))
			if _, err := writer.Write([]byte(line)); err != nil {
				return
			}
		}
	}()
}
