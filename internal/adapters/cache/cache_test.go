package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/campusfeed/internal/adapters/cache"
	"github.com/okian/campusfeed/internal/domain/model"
)

func sampleFeed() []model.RankedPost {
	return []model.RankedPost{
		{
			Post:  model.Post{ID: "p2", ClubID: "c2", LinkedEventID: "e1", EngagementScore: 100},
			Club:  model.Club{ID: "c2"},
			Event: &model.Event{ID: "e1", Category: model.CategoryTech, TotalSeats: 100, RegisteredCount: 85},
			Score: 600,
		},
		{
			Post:  model.Post{ID: "p1", ClubID: "c1", EngagementScore: 100},
			Club:  model.Club{ID: "c1", FollowersCount: 10},
			Score: 550,
		},
	}
}

func encode(gen int64, feed []model.RankedPost) []byte {
	body, _ := json.Marshal(struct {
		Generation int64              `json:"gen"`
		Feed       []model.RankedPost `json:"feed"`
	}{gen, feed})
	return body
}

func TestMemoryCache(t *testing.T) {
	Convey("Given a MemoryCache with a controllable clock", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		c := cache.NewMemoryCache(cache.WithTTL(time.Minute), cache.WithClock(func() time.Time { return now }))

		Convey("An empty cache misses", func() {
			feed, ok, err := c.Get(ctx, "v1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(feed, ShouldBeNil)
		})

		Convey("A stored feed is returned until it expires", func() {
			So(c.Set(ctx, "v1", sampleFeed()), ShouldBeNil)

			feed, ok, err := c.Get(ctx, "v1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(feed, ShouldResemble, sampleFeed())

			now = now.Add(time.Minute)
			_, ok, _ = c.Get(ctx, "v1")
			So(ok, ShouldBeFalse)
		})

		Convey("Returned feeds are copies", func() {
			So(c.Set(ctx, "v1", sampleFeed()), ShouldBeNil)
			feed, _, _ := c.Get(ctx, "v1")
			feed[0].Score = -1
			feed[0].Event.RegisteredCount = 0

			again, _, _ := c.Get(ctx, "v1")
			So(again[0].Score, ShouldEqual, 600.0)
			So(again[0].Event.RegisteredCount, ShouldEqual, 85)
		})

		Convey("Invalidate drops one viewer", func() {
			So(c.Set(ctx, "v1", sampleFeed()), ShouldBeNil)
			So(c.Set(ctx, "v2", sampleFeed()), ShouldBeNil)
			So(c.Invalidate(ctx, "v1"), ShouldBeNil)

			_, ok, _ := c.Get(ctx, "v1")
			So(ok, ShouldBeFalse)
			_, ok, _ = c.Get(ctx, "v2")
			So(ok, ShouldBeTrue)
		})

		Convey("InvalidateAll drops everything", func() {
			So(c.Set(ctx, "v1", sampleFeed()), ShouldBeNil)
			So(c.Set(ctx, "v2", sampleFeed()), ShouldBeNil)
			So(c.InvalidateAll(ctx), ShouldBeNil)
			So(c.Len(), ShouldEqual, 0)
		})

		Convey("SetIfVersion writes while the version is unchanged", func() {
			v, err := c.Version(ctx, "v1")
			So(err, ShouldBeNil)

			ok, err := c.SetIfVersion(ctx, "v1", v, sampleFeed())
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			_, hit, _ := c.Get(ctx, "v1")
			So(hit, ShouldBeTrue)
		})

		Convey("SetIfVersion drops a feed read before Invalidate", func() {
			v, _ := c.Version(ctx, "v1")
			So(c.Invalidate(ctx, "v1"), ShouldBeNil)

			ok, err := c.SetIfVersion(ctx, "v1", v, sampleFeed())
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			_, hit, _ := c.Get(ctx, "v1")
			So(hit, ShouldBeFalse)

			Convey("Other viewers keep their versions", func() {
				other, _ := c.Version(ctx, "v2")
				ok, _ := c.SetIfVersion(ctx, "v2", other, sampleFeed())
				So(ok, ShouldBeTrue)
			})
		})

		Convey("SetIfVersion drops a feed read before InvalidateAll", func() {
			v, _ := c.Version(ctx, "v1")
			So(c.InvalidateAll(ctx), ShouldBeNil)

			ok, err := c.SetIfVersion(ctx, "v1", v, sampleFeed())
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(c.Len(), ShouldEqual, 0)

			fresh, _ := c.Version(ctx, "v1")
			So(fresh, ShouldNotResemble, v)
		})

		Convey("A zero TTL never expires", func() {
			forever := cache.NewMemoryCache(cache.WithTTL(0), cache.WithClock(func() time.Time { return now }))
			So(forever.Set(ctx, "v1", sampleFeed()), ShouldBeNil)
			now = now.Add(24 * time.Hour)
			_, ok, _ := forever.Get(ctx, "v1")
			So(ok, ShouldBeTrue)
		})
	})
}

func TestRedisCache(t *testing.T) {
	Convey("Given a RedisCache on a mocked client", t, func() {
		ctx := context.Background()
		db, mock := redismock.NewClientMock()
		c := cache.NewRedisCache(db, cache.WithPrefix("test"), cache.WithTTL(time.Minute))

		Convey("A missing entry is a miss", func() {
			mock.ExpectMGet("test:feed-gen", "test:feed:v1").SetVal([]interface{}{nil, nil})

			_, ok, err := c.Get(ctx, "v1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("An entry from the current generation is a hit", func() {
			mock.ExpectMGet("test:feed-gen", "test:feed:v1").
				SetVal([]interface{}{"2", string(encode(2, sampleFeed()))})

			feed, ok, err := c.Get(ctx, "v1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(feed, ShouldResemble, sampleFeed())
		})

		Convey("An entry from an older generation is a miss", func() {
			mock.ExpectMGet("test:feed-gen", "test:feed:v1").
				SetVal([]interface{}{"3", string(encode(2, sampleFeed()))})

			_, ok, err := c.Get(ctx, "v1")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("A corrupt payload reports ErrDecode", func() {
			mock.ExpectMGet("test:feed-gen", "test:feed:v1").SetVal([]interface{}{nil, "{"})

			_, ok, err := c.Get(ctx, "v1")
			So(ok, ShouldBeFalse)
			So(errors.Is(err, cache.ErrDecode), ShouldBeTrue)
		})

		Convey("Backend failures report ErrBackend", func() {
			mock.ExpectMGet("test:feed-gen", "test:feed:v1").SetErr(redis.TxFailedErr)

			_, _, err := c.Get(ctx, "v1")
			So(errors.Is(err, cache.ErrBackend), ShouldBeTrue)
		})

		Convey("Set tags the payload with the current generation", func() {
			mock.ExpectGet("test:feed-gen").SetVal("4")
			mock.ExpectSet("test:feed:v1", encode(4, sampleFeed()), time.Minute).SetVal("OK")

			So(c.Set(ctx, "v1", sampleFeed()), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("Set treats a missing generation as zero", func() {
			mock.ExpectGet("test:feed-gen").RedisNil()
			mock.ExpectSet("test:feed:v1", encode(0, sampleFeed()), time.Minute).SetVal("OK")

			So(c.Set(ctx, "v1", sampleFeed()), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("Invalidate bumps the viewer version and deletes the viewer key", func() {
			mock.ExpectIncr("test:feed-ver:v1").SetVal(1)
			mock.ExpectDel("test:feed:v1").SetVal(1)
			So(c.Invalidate(ctx, "v1"), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("Invalidate stops when the version cannot be bumped", func() {
			mock.ExpectIncr("test:feed-ver:v1").SetErr(redis.TxFailedErr)
			So(errors.Is(c.Invalidate(ctx, "v1"), cache.ErrBackend), ShouldBeTrue)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("Version reads the generation and the viewer counter together", func() {
			mock.ExpectMGet("test:feed-gen", "test:feed-ver:v1").SetVal([]interface{}{"3", nil})

			v, err := c.Version(ctx, "v1")
			So(err, ShouldBeNil)
			So(v, ShouldResemble, cache.Version{Generation: 3, Viewer: 0})
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("Version reports a corrupt counter", func() {
			mock.ExpectMGet("test:feed-gen", "test:feed-ver:v1").SetVal([]interface{}{"x", nil})

			_, err := c.Version(ctx, "v1")
			So(errors.Is(err, cache.ErrDecode), ShouldBeTrue)
		})

		Convey("SetIfVersion runs the conditional write script", func() {
			keys := []string{"test:feed-gen", "test:feed-ver:v1", "test:feed:v1"}
			body := string(encode(3, sampleFeed()))

			Convey("and reports a write", func() {
				mock.ExpectEval(cache.SetIfVersionScript, keys, "3", "2", body, "60000").SetVal(int64(1))

				ok, err := c.SetIfVersion(ctx, "v1", cache.Version{Generation: 3, Viewer: 2}, sampleFeed())
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})

			Convey("and reports a dropped stale write", func() {
				mock.ExpectEval(cache.SetIfVersionScript, keys, "3", "2", body, "60000").SetVal(int64(0))

				ok, err := c.SetIfVersion(ctx, "v1", cache.Version{Generation: 3, Viewer: 2}, sampleFeed())
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})

			Convey("and surfaces backend errors", func() {
				mock.ExpectEval(cache.SetIfVersionScript, keys, "3", "2", body, "60000").SetErr(redis.TxFailedErr)

				_, err := c.SetIfVersion(ctx, "v1", cache.Version{Generation: 3, Viewer: 2}, sampleFeed())
				So(errors.Is(err, cache.ErrBackend), ShouldBeTrue)
			})
		})

		Convey("InvalidateAll bumps the generation", func() {
			mock.ExpectIncr("test:feed-gen").SetVal(5)
			So(c.InvalidateAll(ctx), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("InvalidateAll surfaces backend errors", func() {
			mock.ExpectIncr("test:feed-gen").SetErr(redis.TxFailedErr)
			So(errors.Is(c.InvalidateAll(ctx), cache.ErrBackend), ShouldBeTrue)
		})
	})
}
