package helper

import (
	"bufio"
	"io"
)

// maxLine caps a single stderr line.
const maxLine = 1 << 20

func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxLine)
	return s
}
