package collector

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ariaops/aria-exporter/internal/models"
)

func TestStore_LatestNilBeforeFirstPublish(t *testing.T) {
	s := NewStore()
	require.Nil(t, s.Latest())

	totals := s.ErrorTotals()
	require.Equal(t, 0, totals[models.SubsystemResources])
	require.Len(t, totals, 4, "all subsystems are seeded")
}

func TestStore_PublishReplacesWholesale(t *testing.T) {
	s := NewStore()

	first := &models.MetricSnapshot{Timestamp: time.Now(), Up: true}
	s.Publish(first)
	require.Same(t, first, s.Latest())

	second := &models.MetricSnapshot{Timestamp: time.Now(), Up: false}
	s.Publish(second)
	require.Same(t, second, s.Latest())
}

func TestStore_ErrorTotalsAccumulate(t *testing.T) {
	s := NewStore()

	s.Publish(&models.MetricSnapshot{ScrapeErrors: map[string]int{
		models.SubsystemResources: 1,
		models.SubsystemStats:     2,
	}})
	s.Publish(&models.MetricSnapshot{ScrapeErrors: map[string]int{
		models.SubsystemStats:  1,
		models.SubsystemAlerts: 1,
	}})

	totals := s.ErrorTotals()
	require.Equal(t, 1, totals[models.SubsystemResources])
	require.Equal(t, 3, totals[models.SubsystemStats])
	require.Equal(t, 1, totals[models.SubsystemAlerts])
	require.Equal(t, 0, totals[models.SubsystemSupermetrics])
}

func TestStore_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	s := NewStore()

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			n := i % 5
			snap := &models.MetricSnapshot{
				Up:        true,
				Resources: make([]models.ResourceDescriptor, n),
				Stats:     make([]models.StatSample, n),
			}
			s.Publish(snap)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10000; i++ {
				snap := s.Latest()
				if snap == nil {
					continue
				}
				// A snapshot is internally consistent: never a mix of two cycles.
				if len(snap.Resources) != len(snap.Stats) {
					t.Error("observed torn snapshot")
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()
}
