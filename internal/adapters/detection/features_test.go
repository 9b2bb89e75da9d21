package detection

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestComputeLowRate(t *testing.T) {
	records := []*domain.Record{
		domain.NewRecord("10.0.0.1", "/a", t0.Add(time.Second)),
		domain.NewRecord("10.0.0.1", "/b", t0.Add(2*time.Second)),
		domain.NewRecord("10.0.0.1", "/a", t0.Add(3*time.Second)),
	}

	f := Compute(records, 30*time.Second)

	assert.InDelta(t, 0.10, f.RequestRate, 1e-12)
	assert.Equal(t, 2.0, f.UniqueURLProxy)
}

func TestComputeFlood(t *testing.T) {
	records := make([]*domain.Record, 400)
	for i := range records {
		records[i] = domain.NewRecord("203.0.113.9", "/", t0.Add(time.Duration(i)*75*time.Millisecond))
	}

	f := Compute(records, 30*time.Second)

	assert.InDelta(t, 13.333333, f.RequestRate, 1e-6)
	assert.Equal(t, 1.0, f.UniqueURLProxy)
}

func TestComputeEmptyAndDegenerateWindow(t *testing.T) {
	assert.Equal(t, domain.Features{}, Compute(nil, 30*time.Second))

	f := Compute([]*domain.Record{domain.NewRecord("a", "/", t0)}, 0)
	assert.Zero(t, f.RequestRate)
	assert.Equal(t, 1.0, f.UniqueURLProxy)
}

func TestComputeExactCounts(t *testing.T) {
	for n := 1; n <= 50; n += 7 {
		records := make([]*domain.Record, n)
		for i := range records {
			records[i] = domain.NewRecord("a", fmt.Sprintf("/%d", i%5), t0)
		}
		f := Compute(records, 10*time.Second)
		assert.Equal(t, float64(n)/10, f.RequestRate)
		assert.Equal(t, float64(min(n, 5)), f.UniqueURLProxy)
	}
}

func TestWindowStart(t *testing.T) {
	assert.Equal(t, t0.Add(-30*time.Second), WindowStart(t0, DefaultWindow))
}

func TestBuildDatasetSlidingWindow(t *testing.T) {
	var records []*domain.Record
	// 20 req/s from the flood source for 2 seconds, one request from a
	// quiet source in the middle.
	for i := 0; i < 40; i++ {
		records = append(records, domain.NewRecord("flood", "/", t0.Add(time.Duration(i)*50*time.Millisecond)))
	}
	records = append(records, domain.NewRecord("quiet", "/x", t0.Add(time.Second)))

	samples := BuildDataset(records, DatasetConfig{Window: time.Second, Threshold: 10})
	require.Len(t, samples, 41)

	var last Sample
	for _, s := range samples {
		if s.SourceID == "quiet" {
			assert.Equal(t, domain.LabelBenign, s.Label)
			assert.Equal(t, 1.0, s.Features.RequestRate)
			continue
		}
		last = s
	}
	assert.Equal(t, domain.LabelBurst, last.Label)
	assert.Equal(t, 20.0, last.Features.RequestRate)
}

func TestBuildDatasetSortsByTime(t *testing.T) {
	records := []*domain.Record{
		domain.NewRecord("a", "/2", t0.Add(40*time.Second)),
		domain.NewRecord("a", "/1", t0),
	}

	samples := BuildDataset(records, DatasetConfig{})
	require.Len(t, samples, 2)
	// The later record's window no longer contains the first one.
	assert.InDelta(t, 1.0/30, samples[1].Features.RequestRate, 1e-12)
	assert.Equal(t, "/2", records[0].URL)
}

func TestWriteDatasetCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDatasetCSV(&buf, []Sample{
		{SourceID: "10.0.0.1", Features: domain.Features{RequestRate: 0.1, UniqueURLProxy: 2}},
		{SourceID: "10.0.0.2", Features: domain.Features{RequestRate: 13.5, UniqueURLProxy: 1}, Label: domain.LabelBurst},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"src_ip,request_rate,unique_urls_proxy,label",
		"10.0.0.1,0.1,2,0",
		"10.0.0.2,13.5,1,1",
	}, lines)
}
