package cd11

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/ema"
)

// Stats is a snapshot of the traffic on a Conn.
type Stats struct {
	FramesRead    uint64
	FramesWritten uint64
	BytesRead     uint64
	BytesWritten  uint64
	// FrameInterval is the moving average of the time between two frames
	// read. Zero until two frames were read.
	FrameInterval time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("read %s frames (%s), wrote %s frames (%s), one frame every %v",
		humanize.Comma(int64(s.FramesRead)), humanize.Bytes(s.BytesRead),
		humanize.Comma(int64(s.FramesWritten)), humanize.Bytes(s.BytesWritten),
		s.FrameInterval)
}

type statsTracker struct {
	framesRead    uint64
	framesWritten uint64
	bytesRead     uint64
	bytesWritten  uint64
	lastReadAt    int64
	intervals     uint64
	emaInterval   *ema.EMA
}

func newStatsTracker() *statsTracker {
	return &statsTracker{emaInterval: ema.NewDuration(0, 0.1)}
}

func (st *statsTracker) onRead(n int, at time.Time) {
	atomic.AddUint64(&st.framesRead, 1)
	atomic.AddUint64(&st.bytesRead, uint64(n))
	if last := atomic.SwapInt64(&st.lastReadAt, at.UnixNano()); last != 0 {
		st.emaInterval.UpdateDuration(time.Duration(at.UnixNano() - last))
		atomic.AddUint64(&st.intervals, 1)
	}
}

func (st *statsTracker) onWrite(n int) {
	atomic.AddUint64(&st.framesWritten, 1)
	atomic.AddUint64(&st.bytesWritten, uint64(n))
}

func (st *statsTracker) snapshot() Stats {
	s := Stats{
		FramesRead:    atomic.LoadUint64(&st.framesRead),
		FramesWritten: atomic.LoadUint64(&st.framesWritten),
		BytesRead:     atomic.LoadUint64(&st.bytesRead),
		BytesWritten:  atomic.LoadUint64(&st.bytesWritten),
	}
	if atomic.LoadUint64(&st.intervals) > 0 {
		s.FrameInterval = st.emaInterval.GetDuration()
	}
	return s
}

func humanizeBytes(n int) string {
	return humanize.Bytes(uint64(n))
}
