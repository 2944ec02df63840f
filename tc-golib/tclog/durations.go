package tclog

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
)

type duration struct {
	name     string
	duration time.Duration
}

// Durations tracks named durations
type Durations []duration

// Record records a duration
func (t *Durations) Record(name string, d time.Duration) {
	*t = append(*t, duration{name, d})
}

// Total sums all recorded durations
func (t Durations) Total() time.Duration {
	var total time.Duration
	for _, entry := range t {
		total += entry.duration
	}
	return total
}

// Table renders the recorded durations as a tab aligned table
func (t Durations) Table() string {
	var b bytes.Buffer
	tw := tabwriter.NewWriter(&b, 4, 4, 0, ' ', 0)
	for _, entry := range t {
		fmt.Fprintf(tw, "   %s\t%s\n", entry.name, entry.duration)
	}
	tw.Flush()
	return b.String()
}

// Flush writes the table to the logger at debug level and resets the tracker
func (t *Durations) Flush(logger *zap.Logger, msg string) {
	logger.Debug(msg, zap.String("durations", t.Table()), zap.Duration("total", t.Total()))
	*t = nil
}
