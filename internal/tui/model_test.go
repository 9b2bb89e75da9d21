package tui

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/N-MohammedShakeel/DDoS-Detection-System/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(src string, at time.Duration, label domain.Label) *domain.Record {
	r := domain.NewRecord(src, "/", t0.Add(at))
	r.Prediction = label
	return r
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, 10)
	assert.Equal(t, VerdictNoData, s.Verdict)
	assert.Zero(t, s.Total)
	assert.Empty(t, s.RatePerSecond)
}

func TestSummarizeClear(t *testing.T) {
	s := Summarize([]*domain.Record{
		rec("10.0.0.1", 0, domain.LabelBenign),
		rec("10.0.0.2", 1500*time.Millisecond, domain.LabelBenign),
	}, 10)

	assert.Equal(t, VerdictClear, s.Verdict)
	assert.Equal(t, 2, s.Benign)
	assert.Equal(t, 2, s.Sources)
	assert.Equal(t, []float64{1, 1}, s.RatePerSecond)
	assert.Equal(t, t0, s.RateStart)
}

func TestSummarizeBurstAndTopSources(t *testing.T) {
	var records []*domain.Record
	for i := 0; i < 30; i++ {
		records = append(records, rec("203.0.113.9", time.Duration(i)*100*time.Millisecond, domain.LabelBurst))
	}
	for i := 0; i < 12; i++ {
		records = append(records, rec(fmt.Sprintf("10.0.0.%d", i), time.Duration(i)*time.Second, domain.LabelBenign))
	}
	records = append(records, rec("10.0.0.3", 5*time.Second, domain.LabelBenign))

	s := Summarize(records, 10)

	assert.Equal(t, VerdictBurst, s.Verdict)
	assert.Equal(t, 30, s.Bursts)
	assert.Equal(t, 13, s.Benign)
	assert.Equal(t, 13, s.Sources)
	assert.Equal(t, []string{"203.0.113.9"}, s.BurstSources)

	require.Len(t, s.TopSources, 10)
	assert.Equal(t, "203.0.113.9", s.TopSources[0].SourceID)
	assert.Equal(t, 30, s.TopSources[0].Requests)
	assert.Equal(t, "10.0.0.3", s.TopSources[1].SourceID)
	assert.Equal(t, 2, s.TopSources[1].Requests)
	// Ties break by source id.
	assert.Equal(t, "10.0.0.0", s.TopSources[2].SourceID)

	require.Len(t, s.RatePerSecond, 12)
	assert.Equal(t, 11.0, s.RatePerSecond[0])
	assert.Equal(t, 11.0, s.RatePerSecond[1])
	assert.Equal(t, 11.0, s.RatePerSecond[2])
}

func TestSummarizeBoundsRateSeries(t *testing.T) {
	s := Summarize([]*domain.Record{
		rec("a", 0, domain.LabelBenign),
		rec("a", 5*time.Hour, domain.LabelBenign),
	}, 10)

	assert.Len(t, s.RatePerSecond, maxRateBuckets)
	assert.Equal(t, 1.0, s.RatePerSecond[maxRateBuckets-1])
}

func TestModelApplyKeepsDataOnError(t *testing.T) {
	var m Model
	m.Apply([]*domain.Record{rec("a", 0, domain.LabelBurst), rec("b", 0, domain.LabelBenign)}, 1, nil, t0)
	assert.Len(t, m.Recent, 1)
	assert.Equal(t, 2, m.Summary.Total)

	m.Apply(nil, 1, errors.New("store locked"), t0.Add(time.Second))
	assert.Error(t, m.Err)
	assert.Equal(t, 2, m.Summary.Total)
	assert.Equal(t, 2, m.Refreshes)
}

type fakeReader struct {
	records []*domain.Record
	err     error
	limit   int
}

func (f *fakeReader) RecentRecords(_ context.Context, limit int) ([]*domain.Record, error) {
	f.limit = limit
	return f.records, f.err
}

func TestAppRefreshAndRender(t *testing.T) {
	reader := &fakeReader{records: []*domain.Record{
		rec("203.0.113.9", time.Second, domain.LabelBurst),
		rec("10.0.0.1", 0, domain.LabelBenign),
	}}
	app := NewApp(Config{Reader: reader, Limit: 500, StoreName: "requests.db", Now: func() time.Time { return t0 }})

	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	msg := app.refresh()()
	app.Update(msg)
	assert.Equal(t, 500, reader.limit)

	view := app.View()
	assert.Contains(t, view, "BURST DETECTED: 203.0.113.9")
	assert.Contains(t, view, "TOP SOURCES")

	app.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Contains(t, app.View(), "RECENT RECORDS (2)")

	app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, app.View(), "203.0.113.9")
	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Contains(t, app.View(), "RECENT RECORDS")
}

func TestAppShowsNoData(t *testing.T) {
	app := NewApp(Config{Reader: &fakeReader{}})
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	app.Update(app.refresh()())

	assert.Contains(t, app.View(), "NO DATA")
}

func TestAppManualRefreshWhileIdle(t *testing.T) {
	app := NewApp(Config{Reader: &fakeReader{}})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)

	// A refresh is already in flight.
	_, cmd = app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Nil(t, cmd)

	app.Update(app.refresh()())
	assert.Equal(t, 1, app.Model().Refreshes)

	_, cmd = app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.NotNil(t, cmd)
}

func TestAppQuit(t *testing.T) {
	app := NewApp(Config{Reader: &fakeReader{}})
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
