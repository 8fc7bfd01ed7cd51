package app

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	CellSaves       *prometheus.CounterVec
	Bookings        *prometheus.CounterVec
	Quotes          prometheus.Counter
	DeleteConflicts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CellSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratecard_cell_saves_total",
			Help: "Cell writes by HTTP method.",
		}, []string{"method"}),
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratecard_bookings_total",
			Help: "Booking submissions by result.",
		}, []string{"result"}),
		Quotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratecard_package_quotes_total",
			Help: "Package quotes computed.",
		}),
		DeleteConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratecard_delete_conflicts_total",
			Help: "Deletes rejected because bookings depend on the entity.",
		}, []string{"entity"}),
	}
	reg.MustRegister(m.CellSaves, m.Bookings, m.Quotes, m.DeleteConflicts)
	return m
}
