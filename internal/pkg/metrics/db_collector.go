package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// ObserveDBPool copies a pool snapshot into the db gauges. Acquire counts
// are cumulative since the pool was opened.
func ObserveDBPool(pool *pgxpool.Pool) {
	s := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(s.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))

	DBPoolAcquires.WithLabelValues("total").Set(float64(s.AcquireCount()))
	DBPoolAcquires.WithLabelValues("waited").Set(float64(s.EmptyAcquireCount()))
	DBPoolAcquires.WithLabelValues("canceled").Set(float64(s.CanceledAcquireCount()))
}
