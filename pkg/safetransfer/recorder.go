// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package safetransfer

// Recorder observes channel activity. Statistics and Metrics implement it.
type Recorder interface {
	// RecordReceive is called once per Poll or Dispatch that consumed bytes.
	RecordReceive(status Status, typ PacketType, reason error)
	// RecordSend is called once per send attempt with its error, or nil.
	RecordSend(err error)
}

type multiRecorder []Recorder

// MultiRecorder fans every event out to each of recorders
func MultiRecorder(recorders ...Recorder) Recorder {
	m := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multiRecorder) RecordReceive(status Status, typ PacketType, reason error) {
	for _, r := range m {
		r.RecordReceive(status, typ, reason)
	}
}

func (m multiRecorder) RecordSend(err error) {
	for _, r := range m {
		r.RecordSend(err)
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordReceive(Status, PacketType, error) {}
func (nopRecorder) RecordSend(error)                        {}
