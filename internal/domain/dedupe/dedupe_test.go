package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/campusfeed/internal/domain/dedupe"
)

func TestDeduper(t *testing.T) {
	Convey("Given a bounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		Convey("The first sighting is new and the second is a duplicate", func() {
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, int64(1))
		})

		Convey("The oldest id is forgotten when full", func() {
			for _, id := range []string{"a", "b", "c", "d"} {
				So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
			}
			So(d.Size(), ShouldEqual, int64(3))
			So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
		})

		Convey("Unrecord allows a retry", func() {
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			d.Unrecord(ctx, "a")
			So(d.Size(), ShouldEqual, int64(0))
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
		})

		Convey("Unrecord of an unknown id is a no-op", func() {
			d.Unrecord(ctx, "ghost")
			So(d.Size(), ShouldEqual, int64(0))
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i))
		}
		So(d.Size(), ShouldEqual, int64(1000))
		So(d.SeenAndRecord(ctx, "id-0"), ShouldBeTrue)
	})

	Convey("Concurrent callers record each id exactly once", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		var fresh atomic.Int64
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i)) {
						fresh.Add(1)
					}
				}
			}()
		}
		wg.Wait()
		So(fresh.Load(), ShouldEqual, int64(100))
	})
}
