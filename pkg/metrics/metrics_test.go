package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithName("test", "unit"),
				WithLatencyBuckets([]float64{1, 5, 10}),
				WithFeedSizeBuckets([]float64{1, 10, 100}),
				WithRegisterer(registry),
			)

			Convey("Then metrics are registered on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.rankInvocations.Inc()
				manager.feedSize.Observe(7)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_rank_invocations_total")
				So(names, ShouldContain, "test_unit_feed_size_posts")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording a ranking run", func() {
			before := testutil.ToFloat64(globalManager.postsDropped)
			RecordRank(1.5, 4, 2)

			Convey("Then dropped posts are counted", func() {
				So(testutil.ToFloat64(globalManager.postsDropped)-before, ShouldEqual, 2.0)
			})
		})

		Convey("When recording cache activity", func() {
			hits := testutil.ToFloat64(globalManager.cacheHits)
			RecordCacheHit()
			RecordCacheMiss()
			RecordCacheError()
			RecordCacheInvalidation("all")
			So(testutil.ToFloat64(globalManager.cacheHits)-hits, ShouldEqual, 1.0)
		})

		Convey("When recording queue and worker activity", func() {
			UpdateQueueCapacity(10)
			UpdateQueueSize(3)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3.0)
			So(func() {
				RecordChangeReceived("posts")
				RecordChangeDuplicate()
				RecordChangeApplied()
				RecordQueueRejected("full")
				UpdateWorkerCount(4)
				RecordWorkerError()
				RecordWorkerLatency(2)
			}, ShouldNotPanic)
		})

		Convey("When recording source, HTTP and error metrics", func() {
			So(func() {
				RecordSourceQuery("posts", 3.2, false)
				RecordSourceQuery("clubs", 9.1, true)
				RecordHTTPRequest("feed", "GET", "200", 4)
				RecordErrorByComponent("cache", "timeout")
			}, ShouldNotPanic)
		})

		Convey("When recording process metrics", func() {
			UpdateMemoryUsage(2048)
			UpdateGoroutineCount(12)
			So(testutil.ToFloat64(globalManager.memoryUsage), ShouldEqual, 2048.0)
			So(testutil.ToFloat64(globalManager.goroutineCount), ShouldEqual, 12.0)
			So(func() { RecordGCPause(0.4) }, ShouldNotPanic)
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
