package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readerglass/internal/clock/clocktest"
	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
	"github.com/JakeFAU/readerglass/internal/tracker"
)

func newSinkFixture(t *testing.T) (*Sink, *events.Bus) {
	t.Helper()
	bus := events.New(clocktest.New(time.Unix(1700000000, 0).UTC()), nil)
	sink, err := NewSink(bus, prometheus.NewRegistry())
	require.NoError(t, err)
	sink.Start()
	t.Cleanup(sink.Close)
	return sink, bus
}

func TestProgressGaugeTracksLatestValue(t *testing.T) {
	t.Parallel()

	sink, bus := newSinkFixture(t)

	bus.Publish(reader.EventProgressUpdated, reader.ProgressUpdated{BookID: "b1", Progress: 40})
	bus.Publish(reader.EventProgressUpdated, reader.ProgressUpdated{BookID: "b1", Progress: 55})

	require.Equal(t, 55.0, testutil.ToFloat64(sink.progressPercent.WithLabelValues("b1")))
}

func TestPageTurnCounterByDirection(t *testing.T) {
	t.Parallel()

	sink, bus := newSinkFixture(t)

	bus.Publish(reader.EventPageTurn, reader.PageTurn{Direction: reader.Forward})
	bus.Publish(reader.EventPageTurn, reader.PageTurn{Direction: reader.Forward})
	bus.Publish(reader.EventPageTurn, reader.PageTurn{Direction: reader.Backward})

	require.Equal(t, 2.0, testutil.ToFloat64(sink.pageTurns.WithLabelValues("forward")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pageTurns.WithLabelValues("backward")))
}

func TestRouteChangeSurfaceLabel(t *testing.T) {
	t.Parallel()

	sink, bus := newSinkFixture(t)

	bus.Publish(reader.EventRouteChanged, reader.RouteChanged{IsReader: true})
	bus.Publish(reader.EventRouteChanged, reader.RouteChanged{IsReader: false})

	require.Equal(t, 1.0, testutil.ToFloat64(sink.routeChanges.WithLabelValues("reader")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.routeChanges.WithLabelValues("other")))
}

func TestDroppedAndCorrectionCollectors(t *testing.T) {
	t.Parallel()

	sink, bus := newSinkFixture(t)

	bus.Publish(tracker.EventDropped, tracker.Dropped{Event: reader.EventPageTurn})
	bus.Publish(tracker.EventCorrection, tracker.Correction{BookID: "b1", Ratio: 1.3})

	require.Equal(t, 1.0, testutil.ToFloat64(sink.eventsDropped.WithLabelValues(reader.EventPageTurn)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.corrections))
	require.Equal(t, 1.3, testutil.ToFloat64(sink.correctionRatio.WithLabelValues("b1")))
}

func TestSettingsVersionGauge(t *testing.T) {
	t.Parallel()

	sink, bus := newSinkFixture(t)

	bus.Publish(reader.EventSettingsUpdated, reader.SettingsUpdated{Version: 7})
	require.Equal(t, 7.0, testutil.ToFloat64(sink.settingsVersion))
}

func TestCloseStopsCollecting(t *testing.T) {
	t.Parallel()

	sink, bus := newSinkFixture(t)
	sink.Close()

	bus.Publish(reader.EventChapterChanged, reader.ChapterChanged{})
	require.Zero(t, testutil.ToFloat64(sink.chapterChanges))
}
