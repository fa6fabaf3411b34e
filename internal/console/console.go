package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"paritystore/internal/storage"
)

// Console applies commands read from an input stream to a store.
type Console struct {
	store *storage.Store
	log   logrus.FieldLogger
}

// New creates a console for store.
func New(store *storage.Store, log logrus.FieldLogger) *Console {
	return &Console{store: store, log: log.WithField("component", "console")}
}

// Run reads commands from r until it is exhausted or ctx ends. Bad commands
// are logged and skipped.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.Exec(sc.Text()); err != nil {
			c.log.Warn(err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read commands: %w", err)
	}
	return nil
}

// Exec runs a single command line.
func (c *Console) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToUpper(fields[0]) {
	case "ERROR":
		if len(fields) != 2 {
			return fmt.Errorf("usage: ERROR <index>")
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", fields[1])
		}
		before, err := c.store.Get(index)
		if err != nil {
			return err
		}
		after, err := c.store.InjectCorruption(index)
		if err != nil {
			return err
		}
		c.log.WithField("index", index).Infof("Injected error: %v -> %v", before, after)
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}
