package logging

import (
	"os"
	"sync"
)

// cappedFile is an append-only log file that starts over once it would grow
// beyond maxBytes.
type cappedFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	f        *os.File
	written  int64
}

func openCappedFile(path string, maxMB int) (*cappedFile, error) {
	if maxMB <= 0 {
		maxMB = 10
	}
	c := &cappedFile{path: path, maxBytes: int64(maxMB) << 20}
	if err := c.reopen(os.O_APPEND); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *cappedFile) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		if err := c.reopen(os.O_APPEND); err != nil {
			return 0, err
		}
	}
	if c.written+int64(len(p)) > c.maxBytes {
		if err := c.reopen(os.O_TRUNC); err != nil {
			return 0, err
		}
	}
	n, err := c.f.Write(p)
	c.written += int64(n)
	return n, err
}

func (c *cappedFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

func (c *cappedFile) reopen(mode int) error {
	if c.f != nil {
		_ = c.f.Close()
		c.f = nil
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	c.f = f
	c.written = info.Size()
	return nil
}
