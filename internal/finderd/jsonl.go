package finderd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxLineBytes bounds a single request or response line.
const MaxLineBytes = 16 << 20

var ErrLineTooLong = errors.New("jsonl line too long")

// ReadOneLine returns the next non-blank line without its terminator. A final
// line without a trailing newline is accepted.
func ReadOneLine(r *bufio.Reader) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	for {
		var line []byte
		for {
			chunk, isPrefix, err := r.ReadLine()
			if err != nil {
				if err == io.EOF && len(line) > 0 {
					break
				}
				return nil, err
			}
			line = append(line, chunk...)
			if len(line) > MaxLineBytes {
				return nil, ErrLineTooLong
			}
			if !isPrefix {
				break
			}
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func WriteOneLine(w io.Writer, obj any) error {
	if w == nil {
		return fmt.Errorf("writer is nil")
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
