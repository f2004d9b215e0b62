package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/analytics/clv"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	path := writeRetailCSV(t, dataDir, "retail.csv", 10, 12)

	m := NewManager(ManagerConfig{
		DataDir:  dataDir,
		DataPath: path,
		Params:   testParams("", filepath.Join(dir, "out")),
	})
	return m, dataDir
}

func TestManagerRunLifecycle(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Equal(t, model.RunIdle, m.Status().Status)
	_, _, err := m.Results()
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	events := m.Subscribe()
	defer m.Unsubscribe(events)

	runID, err := m.Start(context.Background(), model.RunRequest{HorizonMonths: 6})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	var final model.ProgressEvent
	timeout := time.After(time.Minute)
	for final.Stage != model.StageCompleteMarker {
		select {
		case ev := <-events:
			assert.Equal(t, runID, ev.RunID)
			final = ev
		case <-timeout:
			t.Fatal("run did not finish")
		}
	}
	m.Wait()

	status := m.Status()
	assert.Equal(t, runID, status.RunID)
	assert.Equal(t, model.RunCompleted, status.Status)

	result, cached, err := m.Results()
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Contains(t, result.Results, model.ResultCLV)
	assert.False(t, m.LastUpdated().IsZero())

	report, err := m.EngineReport(context.Background(), model.ResultCLV)
	require.NoError(t, err)
	assert.Equal(t, result.Results[model.ResultCLV], report)
}

func TestManagerDropsResultsOfFailedStages(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Start(context.Background(), model.RunRequest{})
	require.NoError(t, err)
	m.Wait()
	first, _, err := m.Results()
	require.NoError(t, err)
	require.Contains(t, first.Results, model.ResultSegment)

	// ten customers cannot form 500 clusters
	_, err = m.Start(context.Background(), model.RunRequest{Clusters: 500})
	require.NoError(t, err)
	m.Wait()

	second, cached, err := m.Results()
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Contains(t, second.Status.StagesFailed, model.StageSegmentation)
	assert.NotContains(t, second.Results, model.ResultSegment)
	assert.Contains(t, second.Results, model.ResultRFM)

	_, ok := m.cache.Get(model.ResultSegment)
	assert.False(t, ok)
}

func TestManagerRejectsConcurrentRuns(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.acquire())

	_, err := m.Start(context.Background(), model.RunRequest{})
	assert.True(t, errors.Is(err, errors.ErrRunInProgress))

	_, err = m.EngineReport(context.Background(), model.ResultRFM)
	assert.True(t, errors.Is(err, errors.ErrRunInProgress))

	_, err = m.Activate(context.Background(), "retail.csv")
	assert.True(t, errors.Is(err, errors.ErrRunInProgress))

	m.release()
	_, err = m.EngineReport(context.Background(), model.ResultRFM)
	assert.NoError(t, err)
}

func TestManagerCancelWithoutRun(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Cancel()
	assert.True(t, errors.Is(err, errors.ErrPrerequisite))
	assert.Equal(t, 409, errors.HTTPStatus(err))
}

func TestManagerRunParams(t *testing.T) {
	m, _ := newTestManager(t)

	p, err := m.runParams(model.RunRequest{ReferenceDate: "2024-01-31", Clusters: 3, Frequency: "W", KMin: 3, KMax: 5})
	require.NoError(t, err)
	require.NotNil(t, p.ReferenceDate)
	assert.Equal(t, "2024-01-31", p.ReferenceDate.Format("2006-01-02"))
	assert.Equal(t, 3, p.KOverride)
	assert.Equal(t, "W", p.ForecastFreq)
	assert.Equal(t, 3, p.KMin)
	assert.Equal(t, 5, p.KMax)

	_, err = m.runParams(model.RunRequest{ReferenceDate: "31/01/2024"})
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestManagerEngineReportCaches(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.EngineReport(context.Background(), model.ResultCLV)
	require.NoError(t, err)
	_, ok := first.(clv.Report)
	require.True(t, ok)

	cached, ok := m.cache.Get(model.ResultCLV)
	require.True(t, ok)
	assert.Equal(t, first, cached)

	_, err = m.EngineReport(context.Background(), "nonsense")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestManagerActivateInvalidatesCache(t *testing.T) {
	m, dataDir := newTestManager(t)
	m.cache.Put(model.ResultRFM, "stale")

	other := writeRetailCSV(t, dataDir, "other.csv", 12, 10)
	v, err := m.Activate(context.Background(), "other.csv")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Equal(t, other, m.ActiveDataset())

	_, ok := m.cache.Get(model.ResultRFM)
	assert.False(t, ok)

	_, err = m.Activate(context.Background(), "../etc/passwd.csv")
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))

	_, err = m.Activate(context.Background(), "absent.csv")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestManagerUpload(t *testing.T) {
	m, dataDir := newTestManager(t)

	body := retailHeader + "\n" + strings.Join(retailRows(10, 11), "\n")
	v, err := m.Upload(context.Background(), "upload.csv", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 110, v.Rows)
	assert.Equal(t, filepath.Join(dataDir, "upload.csv"), m.ActiveDataset())

	_, err = m.Upload(context.Background(), "tiny.csv", strings.NewReader(retailHeader+"\n"+retailRows(1, 1)[0]))
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	_, statErr := os.Stat(filepath.Join(dataDir, "tiny.csv"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, filepath.Join(dataDir, "upload.csv"), m.ActiveDataset())

	_, err = m.Upload(context.Background(), "notes.txt", strings.NewReader("x"))
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestManagerDatasets(t *testing.T) {
	m, dataDir := newTestManager(t)
	writeFile(t, dataDir, "readme.md", "ignored")
	writeRetailCSV(t, dataDir, "second.csv", 1, 1)

	list, err := m.Datasets()
	require.NoError(t, err)
	require.Len(t, list, 2)

	active := 0
	for _, d := range list {
		if d.IsActive {
			active++
			assert.Equal(t, "retail.csv", d.Filename)
		}
	}
	assert.Equal(t, 1, active)

	v, err := m.ValidateActive(context.Background())
	require.NoError(t, err)
	assert.True(t, v.IsValid)
}

func TestBroadcasterDropsForSlowSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(model.ProgressEvent{Stage: "s"})
	}
	assert.Len(t, ch, subscriberBuffer)

	b.Unsubscribe(ch)
	assert.Zero(t, b.Subscribers())
	_, open := <-ch
	for open {
		_, open = <-ch
	}
}

func TestCacheReplaceAndInvalidate(t *testing.T) {
	c := NewCache()
	assert.True(t, c.LastUpdated().IsZero())

	c.Replace(map[string]interface{}{"a": 1, "b": 2})
	c.Put("c", 3)
	assert.Len(t, c.All(), 3)
	assert.False(t, c.LastUpdated().IsZero())

	c.Replace(map[string]interface{}{"a": 5})
	assert.Equal(t, map[string]interface{}{"a": 5}, c.All())

	all := c.All()
	all["d"] = 4
	_, ok := c.Get("d")
	assert.False(t, ok)

	c.Invalidate()
	assert.Empty(t, c.All())
	assert.True(t, c.LastUpdated().IsZero())
}
