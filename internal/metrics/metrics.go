// Package metrics collects run metrics of a settlement and writes them in
// the text exposition format for a node exporter textfile collector.
package metrics

import (
	"fleet-settlement-service/internal/parsers"
	"fleet-settlement-service/internal/reconciler"
	"fleet-settlement-service/internal/settlement"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles settlement run metrics.
type Metrics struct {
	registry *prometheus.Registry

	RecordsTotal     *prometheus.CounterVec
	RowsSkippedTotal *prometheus.CounterVec
	VehiclesResolved *prometheus.GaugeVec
	UnresolvedFuel   prometheus.Gauge
	Units            prometheus.Gauge
	PeriodAmount     *prometheus.GaugeVec
	RunDuration      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// New constructs metrics on a private registry labeled with the run id.
func New(runID string) *Metrics {
	labels := prometheus.Labels{"run_id": runID}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "settler_records_loaded_total",
				Help:        "Records decoded by source family and source name",
				ConstLabels: labels,
			},
			[]string{"family", "source"},
		),
		RowsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "settler_rows_skipped_total",
				Help:        "Source rows dropped before decoding by reason",
				ConstLabels: labels,
			},
			[]string{"source", "reason"},
		),
		VehiclesResolved: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "settler_fuel_vehicles",
				Help:        "Distinct fuel vehicles by resolution tier",
				ConstLabels: labels,
			},
			[]string{"tier"},
		),
		UnresolvedFuel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "settler_unresolved_fuel_amount",
			Help:        "Fuel cost of vehicles no unit absorbed",
			ConstLabels: labels,
		}),
		Units: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "settler_units",
			Help:        "Units settled in the period",
			ConstLabels: labels,
		}),
		PeriodAmount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "settler_period_amount",
				Help:        "Period totals by kind (gross, fuel, net)",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "settler_run_duration_seconds",
			Help:        "Wall time of the settlement run",
			ConstLabels: labels,
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "settler_last_run_timestamp_seconds",
			Help:        "Unix time the run finished",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.RecordsTotal,
		m.RowsSkippedTotal,
		m.VehiclesResolved,
		m.UnresolvedFuel,
		m.Units,
		m.PeriodAmount,
		m.RunDuration,
		m.LastRunTimestamp,
	)
	return m
}

// Registry returns the registry holding the run metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSource records the decoding statistics of one source
func (m *Metrics) ObserveSource(family string, stats *parsers.ParseStats) {
	if stats == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(family, stats.Source).Add(float64(stats.Decoded))
	m.RowsSkippedTotal.WithLabelValues(stats.Source, "empty_required").Add(float64(stats.Skipped))
	m.RowsSkippedTotal.WithLabelValues(stats.Source, "out_of_range").Add(float64(stats.Filtered))
}

// ObserveSettlement records tier counts and period totals
func (m *Metrics) ObserveSettlement(s *settlement.Settlement) {
	if s == nil {
		return
	}

	if r := s.Reconciliation; r != nil {
		for _, tier := range []reconciler.Tier{reconciler.TierDirect, reconciler.TierPattern, reconciler.TierOperator, reconciler.TierUnresolved} {
			m.VehiclesResolved.WithLabelValues(tier.String()).Set(float64(r.TierCount(tier)))
		}
	}

	m.Units.Set(float64(len(s.Units)))
	if s.Summary != nil {
		unresolved, _ := s.Summary.UnresolvedTotal().Float64()
		gross, _ := s.Summary.Gross.Float64()
		fuel, _ := s.Summary.FuelTotal.Float64()
		net, _ := s.Summary.Net.Float64()

		m.UnresolvedFuel.Set(unresolved)
		m.PeriodAmount.WithLabelValues("gross").Set(gross)
		m.PeriodAmount.WithLabelValues("fuel").Set(fuel)
		m.PeriodAmount.WithLabelValues("net").Set(net)
	}
}

// WriteFile writes the metrics to path in the text exposition format
func (m *Metrics) WriteFile(path string) error {
	m.LastRunTimestamp.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, m.registry)
}
