package cd11

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// maxNonDataAdvance bounds how far past the highest sequence number seen a
// frame that doesn't carry data may move the tracked range.
const maxNonDataAdvance = 20

// SessionGaps applies CD-1.1 acknowledgement policy to a GapList for one
// frameset.
type SessionGaps struct {
	framesetName string

	// mu makes a reset and a Gaps call never interleave. The GapList has its
	// own lock for each individual operation.
	mu   sync.Mutex
	gaps *GapList
}

// NewSessionGaps returns SessionGaps for the named frameset with nothing
// received yet.
func NewSessionGaps(framesetName string) *SessionGaps {
	return &SessionGaps{framesetName: framesetName, gaps: NewGapList()}
}

// FramesetName returns the creator:destination name of the tracked frameset.
func (s *SessionGaps) FramesetName() string {
	return s.framesetName
}

// Min returns the lowest sequence number received.
func (s *SessionGaps) Min() uint64 {
	return s.gaps.Min()
}

// Max returns the highest sequence number received.
func (s *SessionGaps) Max() uint64 {
	return s.gaps.Max()
}

// IsEmpty reports whether nothing was received since creation or the last
// reset.
func (s *SessionGaps) IsEmpty() bool {
	return s.gaps.IsEmpty()
}

// CheckForReset inspects the range the peer reports in its ACKNACK. If the
// peer's highest sequence number is below everything received so far, its
// counters were restarted and tracking starts over.
func (s *SessionGaps) CheckForReset(ackLow, ackHigh uint64) {
	if ackLow > ackHigh {
		log.Debugf("Ignoring acknack range for %v with low %d > high %d", s.framesetName, ackLow, ackHigh)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if min := s.gaps.Min(); ackHigh < min {
		log.Debugf("Peer reset %v: acknack high %d is below lowest received %d", s.framesetName, ackHigh, min)
		s.gaps.Reset()
	}
}

// AddSequenceNumber records a sequence number received in a DATA or
// COMMAND_RESPONSE frame.
func (s *SessionGaps) AddSequenceNumber(seq uint64) {
	s.mu.Lock()
	s.gaps.AddValue(seq)
	s.mu.Unlock()
}

// AddFrameSequenceNumber records the sequence number of any received frame.
// Frames that don't carry data only count when the list already tracks
// something and seq is in [max(1, Min()), Max()+20], so a malformed frame
// can't drag the tracked range around.
func (s *SessionGaps) AddFrameSequenceNumber(ft FrameType, seq uint64) {
	if ft.IsDataBearing() {
		s.AddSequenceNumber(seq)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gaps.IsEmpty() {
		return
	}
	min, max := s.gaps.Min(), s.gaps.Max()
	limit := max + maxNonDataAdvance
	if limit < max {
		limit = allOnes
	}
	if seq < 1 || seq < min || seq > limit {
		log.Tracef("Ignoring %v sequence number %d for %v outside [%d, %d]", ft, seq, s.framesetName, min, limit)
		return
	}
	s.gaps.AddValue(seq)
}

// Gaps returns the gaps to report in an ACKNACK. Each range starts at the
// last sequence number received before the gap. Ranges that reach the
// highest sequence number received, end at or below the lowest, or span
// the whole space are left out.
func (s *SessionGaps) Gaps() []Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportableGaps()
}

func (s *SessionGaps) reportableGaps() []Range {
	min, max := s.gaps.Min(), s.gaps.Max()
	all := s.gaps.Gaps(true, false)
	result := make([]Range, 0, len(all))
	for _, g := range all {
		switch {
		case g.End >= max, g.End == allOnes, g.End <= min:
			continue
		case g.Start == 0 && g.End == allOnes:
			continue
		}
		result = append(result, g)
	}
	return result
}

// maxExpiryDays is the longest expiry whose cutoff fits a time.Duration.
const maxExpiryDays = math.MaxInt64 / int64(24*time.Hour)

// RemoveExpiredGaps forgets gaps that haven't changed for the given number
// of days, on the assumption that the provider no longer has that data.
func (s *SessionGaps) RemoveExpiredGaps(days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidExpiry, days)
	}
	if int64(days) > maxExpiryDays {
		// older than anything a time.Duration can reach back to
		return nil
	}
	cutoff := s.gaps.now().Add(-time.Duration(days) * 24 * time.Hour)
	s.mu.Lock()
	removed := s.gaps.RemoveGapsModifiedBefore(cutoff)
	s.mu.Unlock()
	if removed > 0 {
		log.Debugf("Removed %d gaps of %v last modified before %v", removed, s.framesetName, cutoff)
	}
	return nil
}

// Acknack returns an ACKNACK body reporting the current state. With nothing
// received the lowest and highest sequence numbers are both 0.
func (s *SessionGaps) Acknack() *Acknack {
	ack := &Acknack{FramesetAcked: s.framesetName}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gaps.IsEmpty() {
		ack.LowestSeqNum, ack.HighestSeqNum = s.gaps.Min(), s.gaps.Max()
	}
	ack.Gaps = s.reportableGaps()
	return ack
}
