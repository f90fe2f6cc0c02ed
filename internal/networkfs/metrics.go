package networkfs

import (
	"github.com/kmaximk/itmo-os-networkfs/internal/fine/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func registerCacheMetrics(reg prometheus.Registerer, c *cache.Cache) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "networkfs_cached_nodes",
		Help: "Number of nodes currently referenced by the kernel, including the root.",
	}, func() float64 { return float64(c.NumNodes()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "networkfs_open_handles",
		Help: "Number of open file and directory handles.",
	}, func() float64 { return float64(c.NumHandles()) })
}
