package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("pipeline"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are registered under the custom names", func() {
				So(manager, ShouldNotBeNil)
				manager.pipelineRuns.WithLabelValues("ready").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_pipeline_pipeline_runs_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording pipeline outcomes", func() {
			before := testutil.ToFloat64(globalManager.pipelineRuns.WithLabelValues("failed"))
			RecordPipelineRun("failed", 12)
			RecordPipelineRun("failed", 30)

			Convey("Then the labelled counter moves", func() {
				So(testutil.ToFloat64(globalManager.pipelineRuns.WithLabelValues("failed")), ShouldEqual, before+2)
			})
		})

		Convey("When recording skipped records", func() {
			before := testutil.ToFloat64(globalManager.recordsSkipped.WithLabelValues("rating", "missing_value"))
			RecordRecordSkipped("rating", "missing_value")

			Convey("Then the skip counter moves", func() {
				So(testutil.ToFloat64(globalManager.recordsSkipped.WithLabelValues("rating", "missing_value")), ShouldEqual, before+1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateQueueCapacity(64)
			UpdateQueueSize(3)
			UpdateLeaderboardEntries("investment", 7)
			UpdateWorkerActiveCount(2)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64.0)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3.0)
				So(testutil.ToFloat64(globalManager.leaderboardEntries.WithLabelValues("investment")), ShouldEqual, 7.0)
				So(testutil.ToFloat64(globalManager.workerActive), ShouldEqual, 2.0)
			})
		})

		Convey("When recording the remaining counters", func() {
			So(func() {
				RecordFetchDuration("investments", 4)
				RecordTriggerDecision("ignored")
				RecordFailureFlagError()
				RecordNotificationError()
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueError("queue_full")
				RecordWorkerRetry()
				RecordWorkerFailure()
				RecordHTTPRequest("results", "GET", "200")
				RecordHTTPRequestDuration("results", "GET", "200", 1.5)
				RecordErrorByComponent("pipeline", "fetch")
			}, ShouldNotPanic)
		})

		Convey("Then the custom registry gathers cleanly", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
