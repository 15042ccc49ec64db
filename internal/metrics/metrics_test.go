// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordDBQuery(t *testing.T) {
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "videos"))

	RecordDBQuery("SELECT", "videos", 10*time.Millisecond, nil)
	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "videos")); got != before {
		t.Errorf("error counter moved on successful query: %v", got)
	}

	RecordDBQuery("SELECT", "videos", 10*time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "videos")); got != before+1 {
		t.Errorf("error counter = %v, want %v", got, before+1)
	}
}

func TestRecordScanCycle(t *testing.T) {
	okBefore := testutil.ToFloat64(ScanCycles.WithLabelValues("success"))
	errBefore := testutil.ToFloat64(ScanCycles.WithLabelValues("error"))

	RecordScanCycle(2*time.Second, 150, 50, 0.25, 6*time.Second, nil)
	if got := testutil.ToFloat64(ScanCycles.WithLabelValues("success")); got != okBefore+1 {
		t.Errorf("success cycles = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(ScanOverlapRatio); got != 0.25 {
		t.Errorf("overlap gauge = %v, want 0.25", got)
	}
	if got := testutil.ToFloat64(ScanInterval); got != 6 {
		t.Errorf("interval gauge = %v, want 6", got)
	}

	RecordScanCycle(time.Second, 0, 0, 0, 12*time.Second, errors.New("upstream down"))
	if got := testutil.ToFloat64(ScanCycles.WithLabelValues("error")); got != errBefore+1 {
		t.Errorf("error cycles = %v, want %v", got, errBefore+1)
	}
	// Failed cycles must not move the interval gauge.
	if got := testutil.ToFloat64(ScanInterval); got != 6 {
		t.Errorf("interval gauge moved on failed cycle: %v", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/displays", "200"))
	RecordAPIRequest("GET", "/api/displays", "200", 25*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/displays", "200")); got != before+1 {
		t.Errorf("request counter = %v, want %v", got, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+2 {
		t.Errorf("active requests = %v, want %v", got, base+2)
	}
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("active requests = %v, want %v", got, base)
	}
}

func TestScanCycleDurationObserved(t *testing.T) {
	var before dto.Metric
	if err := ScanCycleDuration.Write(&before); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	RecordScanCycle(1500*time.Millisecond, 2, 1, 0.1, 10*time.Second, nil)

	var after dto.Metric
	if err := ScanCycleDuration.Write(&after); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got, want := after.GetHistogram().GetSampleCount(), before.GetHistogram().GetSampleCount()+1; got != want {
		t.Errorf("histogram samples = %d, want %d", got, want)
	}
}
