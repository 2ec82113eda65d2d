package geo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMarkerRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_geo_marker_rebuilds_total",
		Help: "Total number of full marker set rebuilds",
	})

	metricMarkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_geo_markers",
		Help: "Current number of markers on the map",
	})
)
