package metrics

import (
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "rag_chat_build_info",
		Help: "A constant metric with labels for version, vcs revision and go version.",
	},
	[]string{"version", "revision", "goversion"},
)

// SetBuildInfo publishes version; the revision is read from the binary's
// embedded vcs settings when available.
func SetBuildInfo(version string) {
	revision, goVersion := "unknown", "unknown"
	if bi, ok := debug.ReadBuildInfo(); ok {
		goVersion = bi.GoVersion
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				revision = s.Value
			}
		}
	}
	buildInfo.WithLabelValues(version, revision, goVersion).Set(1)
}
