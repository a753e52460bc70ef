// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"fmt"
	"time"
)

// Statistics tracks poll outcomes and link quality
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Polls         uint64
	Replies       uint64
	ValidReports  uint64
	NoReply       uint64
	Noise         uint64
	WriteErrors   uint64
	ConfigWrites  uint64
	SonarReadings uint64
	Disconnects   uint64

	// Rates (calculated)
	PollRate   float64 // polls/sec
	ReportRate float64 // valid reports/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordPoll updates the counters for one poll transaction
func (s *Statistics) RecordPoll(reply []byte, err error) {
	s.Polls++
	s.LastUpdateTime = time.Now()

	if err != nil {
		s.WriteErrors++
		return
	}
	if reply == nil {
		s.NoReply++
		return
	}
	s.Replies++
	if _, ok := DecodeReport(reply); ok {
		s.ValidReports++
	} else {
		s.Noise++
	}
}

// CalculateRates calculates poll and report rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PollRate = float64(s.Polls) / elapsed
		s.ReportRate = float64(s.ValidReports) / elapsed
	}
}

// SuccessPercent returns the share of polls answered with a valid report
func (s *Statistics) SuccessPercent() float64 {
	if s.Polls == 0 {
		return 0
	}
	return float64(s.ValidReports) * 100.0 / float64(s.Polls)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.Polls == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.Polls)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Link statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Polls:           %8d\n", s.Polls)
	result += fmt.Sprintf("Valid Reports:   %8d (%.1f%%)\n", s.ValidReports, percent(s.ValidReports))

	if s.NoReply > 0 {
		result += fmt.Sprintf("No Reply:        %8d (%.1f%%)\n", s.NoReply, percent(s.NoReply))
	}
	if s.Noise > 0 {
		result += fmt.Sprintf("Noise:           %8d (%.1f%%)\n", s.Noise, percent(s.Noise))
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d (%.1f%%)\n", s.WriteErrors, percent(s.WriteErrors))
	}
	if s.ConfigWrites > 0 {
		result += fmt.Sprintf("Config Writes:   %8d\n", s.ConfigWrites)
	}
	if s.Disconnects > 0 {
		result += fmt.Sprintf("Disconnects:     %8d\n", s.Disconnects)
	}

	result += fmt.Sprintf("Sonar Readings:  %8d\n", s.SonarReadings)
	result += fmt.Sprintf("Poll Rate:       %8.1f polls/sec\n", s.PollRate)
	result += fmt.Sprintf("Report Rate:     %8.1f reports/sec\n", s.ReportRate)
	result += "====================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
