package collector

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/mqfire/mqfire/internal/stats"
)

var csvHeader = []string{
	"second",
	"pub_messages", "pub_bytes", "pub_active",
	"sub_messages", "sub_bytes", "sub_active",
	"latency_avg_us", "latency_p99_us", "latency_p999_us",
}

// CSV appends one row per snapshot to a file. The file is guarded by
// an exclusive lock for the duration of the run so concurrent bench
// processes cannot interleave rows.
type CSV struct {
	file *os.File
	w    *csv.Writer
	lock *flock.Flock
}

func NewCSV(path string) (*CSV, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("output file %s is locked by another bench run", path)
	}

	file, err := os.Create(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		_ = file.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	w.Flush()

	return &CSV{file: file, w: w, lock: lock}, nil
}

func (c *CSV) Deliver(s stats.Snapshot) error {
	row := []string{
		strconv.FormatInt(s.Second, 10),
		strconv.FormatInt(s.PublisherMessages, 10),
		strconv.FormatInt(s.PublisherBytes, 10),
		strconv.Itoa(s.ActivePublishers),
		strconv.FormatInt(s.ConsumerMessages, 10),
		strconv.FormatInt(s.ConsumerBytes, 10),
		strconv.Itoa(s.ActiveConsumers),
		strconv.FormatFloat(MaxAvg(s.Latencies), 'f', 1, 64),
		strconv.FormatInt(WorstP99(s.Latencies), 10),
		strconv.FormatInt(WorstP999(s.Latencies), 10),
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes pending rows and releases the lock.
func (c *CSV) Close() error {
	c.w.Flush()
	err := c.file.Close()
	if unlockErr := c.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}
