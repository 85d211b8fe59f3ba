// Package metrics exports Prometheus collectors for the reading tracker. The
// Sink listens on the event bus rather than being called directly, so the
// tracker and settings store stay free of metrics plumbing.
package metrics

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/readerglass/internal/events"
	"github.com/JakeFAU/readerglass/internal/reader"
	"github.com/JakeFAU/readerglass/internal/tracker"
)

// Sink owns all reader collectors and keeps them current from bus traffic.
type Sink struct {
	bus   *events.Bus
	owner string

	progressPercent *prometheus.GaugeVec
	pageTurns       *prometheus.CounterVec
	chapterChanges  prometheus.Counter
	routeChanges    *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	corrections     prometheus.Counter
	correctionRatio *prometheus.GaugeVec
	settingsVersion prometheus.Gauge
}

// NewSink registers the collectors against the provided registry.
func NewSink(bus *events.Bus, reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &Sink{
		bus:   bus,
		owner: "metrics-" + uuid.NewString(),
		progressPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reader_progress_percent",
			Help: "Latest published chapter progress per book, percent.",
		}, []string{"book_id"}),
		pageTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reader_page_turns_total",
			Help: "Page turn signals partitioned by direction.",
		}, []string{"direction"}),
		chapterChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reader_chapter_changes_total",
			Help: "Chapter boundary crossings observed on the surface.",
		}),
		routeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reader_route_changes_total",
			Help: "Route changes partitioned by surface kind.",
		}, []string{"surface"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reader_events_dropped_total",
			Help: "Events suppressed by the priority window, by event name.",
		}, []string{"event"}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reader_corrections_total",
			Help: "Chapter size estimate corrections applied.",
		}),
		correctionRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reader_correction_ratio",
			Help: "Last actual/estimated page ratio applied per book.",
		}, []string{"book_id"}),
		settingsVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reader_settings_version",
			Help: "Current optimistic version of the settings record.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.progressPercent,
		s.pageTurns,
		s.chapterChanges,
		s.routeChanges,
		s.eventsDropped,
		s.corrections,
		s.correctionRatio,
		s.settingsVersion,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register reader collector: %w", err)
		}
	}
	return s, nil
}

// Start subscribes the sink to the bus.
func (s *Sink) Start() {
	s.bus.Subscribe(reader.EventProgressUpdated, s.onProgress, events.WithOwner(s.owner))
	s.bus.Subscribe(reader.EventPageTurn, s.onPageTurn, events.WithOwner(s.owner))
	s.bus.Subscribe(reader.EventChapterChanged, s.onChapterChanged, events.WithOwner(s.owner))
	s.bus.Subscribe(reader.EventRouteChanged, s.onRouteChanged, events.WithOwner(s.owner))
	s.bus.Subscribe(reader.EventSettingsUpdated, s.onSettingsUpdated, events.WithOwner(s.owner))
	s.bus.Subscribe(tracker.EventDropped, s.onDropped, events.WithOwner(s.owner))
	s.bus.Subscribe(tracker.EventCorrection, s.onCorrection, events.WithOwner(s.owner))
}

// Close removes the bus subscriptions.
func (s *Sink) Close() {
	s.bus.UnsubscribeOwner(s.owner)
}

func (s *Sink) onProgress(evt events.Event) {
	if p, ok := evt.Payload.(reader.ProgressUpdated); ok {
		s.progressPercent.WithLabelValues(p.BookID).Set(float64(p.Progress))
	}
}

func (s *Sink) onPageTurn(evt events.Event) {
	if p, ok := evt.Payload.(reader.PageTurn); ok && p.Direction.Valid() {
		s.pageTurns.WithLabelValues(string(p.Direction)).Inc()
	}
}

func (s *Sink) onChapterChanged(evt events.Event) {
	if _, ok := evt.Payload.(reader.ChapterChanged); ok {
		s.chapterChanges.Inc()
	}
}

func (s *Sink) onRouteChanged(evt events.Event) {
	p, ok := evt.Payload.(reader.RouteChanged)
	if !ok {
		return
	}
	surface := "other"
	if p.IsReader {
		surface = "reader"
	}
	s.routeChanges.WithLabelValues(surface).Inc()
}

func (s *Sink) onSettingsUpdated(evt events.Event) {
	if p, ok := evt.Payload.(reader.SettingsUpdated); ok {
		s.settingsVersion.Set(float64(p.Version))
	}
}

func (s *Sink) onDropped(evt events.Event) {
	if p, ok := evt.Payload.(tracker.Dropped); ok {
		s.eventsDropped.WithLabelValues(p.Event).Inc()
	}
}

func (s *Sink) onCorrection(evt events.Event) {
	if p, ok := evt.Payload.(tracker.Correction); ok {
		s.corrections.Inc()
		s.correctionRatio.WithLabelValues(p.BookID).Set(p.Ratio)
	}
}
