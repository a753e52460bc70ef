// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

// SensorReport is a periodic robot reply carrying raw sonar samples.
type SensorReport [ReportPacketSize]byte

// DecodeReport accepts reply as a sensor report only if it is exactly
// ReportPacketSize bytes and starts with ReportHeader. Anything else is line
// noise and yields false.
func DecodeReport(reply []byte) (SensorReport, bool) {
	var r SensorReport
	if len(reply) != ReportPacketSize || reply[0] != ReportHeader {
		return r, false
	}
	copy(r[:], reply)
	return r, true
}

// Sonar returns the three raw sonar samples.
func (r SensorReport) Sonar() [SonarCount]uint8 {
	var s [SonarCount]uint8
	copy(s[:], r[ReportSonarStart:ReportSonarStart+SonarCount])
	return s
}

// SonarReading is an averaged sonar triple.
type SonarReading [SonarCount]uint8

// Proximity returns the reading inverted for bar display, so that nearer
// obstacles show as fuller bars.
func (s SonarReading) Proximity() [SonarCount]uint8 {
	var p [SonarCount]uint8
	for i, v := range s {
		p[i] = 255 - v
	}
	return p
}

// SonarAverager smooths sonar samples over SonarSamples reports.
type SonarAverager struct {
	sums  [SonarCount]int
	count int
}

// Add accumulates a report. Every SonarSamples-th call returns the
// integer average of the accumulated samples and resets the sums.
func (a *SonarAverager) Add(r SensorReport) (SonarReading, bool) {
	for i, v := range r.Sonar() {
		a.sums[i] += int(v)
	}
	a.count++
	if a.count < SonarSamples {
		return SonarReading{}, false
	}

	var avg SonarReading
	for i, sum := range a.sums {
		avg[i] = uint8(sum / SonarSamples)
	}
	a.Reset()
	return avg, true
}

// Pending returns how many reports are accumulated toward the next reading.
func (a *SonarAverager) Pending() int {
	return a.count
}

// Sums returns the running sums.
func (a *SonarAverager) Sums() [SonarCount]int {
	return a.sums
}

// Reset discards accumulated samples.
func (a *SonarAverager) Reset() {
	a.sums = [SonarCount]int{}
	a.count = 0
}
