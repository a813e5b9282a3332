package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/datallboy/rangefetch/internal/domain"
)

// Progress redraws a one-line bar for a run on a terminal.
type Progress struct {
	out   io.Writer
	run   *domain.Run
	total atomic.Uint32
	start time.Time
}

func NewProgress(out io.Writer, run *domain.Run) *Progress {
	return &Progress{out: out, run: run, start: time.Now()}
}

// SetTotal is called once the resource length is known. Nothing is drawn
// before that.
func (p *Progress) SetTotal(total uint32) {
	p.total.Store(total)
}

// Start redraws the bar every interval until ctx is done.
func (p *Progress) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastBytes uint64

	for {
		select {
		case <-ticker.C:
			current := p.run.BytesWritten.Load()
			delta := current - lastBytes
			lastBytes = current

			bytesPerSec := float64(delta) / interval.Seconds()
			p.Render(current, bytesPerSec, false)
		case <-ctx.Done():
			return
		}
	}
}

// Render draws the bar for current bytes. With final set the speed shown is
// the average over the whole run.
func (p *Progress) Render(current uint64, bytesPerSec float64, final bool) {
	total := uint64(p.total.Load())
	if total == 0 {
		return
	}
	elapsed := time.Since(p.start)

	percent := float64(current) / float64(total) * 100
	if percent > 100 {
		percent = 100
	}

	eta := "calc..."
	speedLabel, timeLabel := "Speed", "ETA"

	if final {
		speedLabel, timeLabel = "Avg", "Time"
		seconds := elapsed.Seconds()
		if seconds < 0.1 {
			seconds = 0.1
		}
		bytesPerSec = float64(current) / seconds
		eta = elapsed.Truncate(time.Millisecond).String()
	} else if avg := float64(current) / elapsed.Seconds(); avg > 0 && current <= total {
		remaining := float64(total-current) / avg
		eta = (time.Duration(remaining) * time.Second).String()
	}

	const barWidth = 20
	filled := int(percent / 100 * barWidth)
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-filled-1)
	}

	fmt.Fprintf(p.out, "\r[%s] %5.1f%% | %s: %8.1f KiB/s | %s: %-7s | %d/%d KiB    ",
		bar, percent, speedLabel, bytesPerSec/1024, timeLabel, eta, current/1024, total/1024)

	if final {
		fmt.Fprintln(p.out)
	}
}
