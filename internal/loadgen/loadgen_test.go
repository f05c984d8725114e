package loadgen_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/campusfeed/internal/adapters/http/api"
	"github.com/okian/campusfeed/internal/adapters/repository"
	service "github.com/okian/campusfeed/internal/app"
	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/internal/loadgen"
	"github.com/okian/campusfeed/pkg/logger"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := repository.NewMemoryStoreFromSnapshot(model.Snapshot{
		Clubs:  []model.Club{{ID: "A"}, {ID: "B"}},
		Events: []model.Event{{ID: "e1", Category: model.CategoryMusic, TotalSeats: 20, RegisteredCount: 19}},
		Posts: []model.Post{
			{ID: "p1", ClubID: "A", EngagementScore: 40},
			{ID: "p2", ClubID: "B", LinkedEventID: "e1", EngagementScore: 10},
			{ID: "p3", ClubID: "B", EngagementScore: 90},
		},
	}, model.NewViewerState("u1", []string{"B"}, map[model.Category]float64{model.CategoryMusic: 1}))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := service.New(service.WithStore(store), service.WithWorkerCount(2), service.WithInvalidateRate(0))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := httptest.NewServer(api.NewServer(svc).Handler())
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv
}

func TestGenerateChanges(t *testing.T) {
	Convey("Given a fixed seed", t, func() {
		changes := loadgen.GenerateChanges(500, 0.2, []string{"u1", "u2"}, 7)

		Convey("It generates the requested number of valid changes", func() {
			So(len(changes), ShouldEqual, 500)
			for _, c := range changes {
				So(c.ID, ShouldNotBeEmpty)
				So(c.Table, ShouldBeIn, []string{"posts", "clubs", "events", "viewers"})
				So(c.Op, ShouldBeIn, []string{"insert", "update", "delete"})
				if c.Table == "viewers" {
					So(c.RowID, ShouldBeIn, []string{"u1", "u2"})
				}
			}
		})

		Convey("Some ids are repeated", func() {
			seen := map[string]bool{}
			repeats := 0
			for _, c := range changes {
				if seen[c.ID] {
					repeats++
				}
				seen[c.ID] = true
			}
			So(repeats, ShouldBeGreaterThan, 0)
			So(repeats, ShouldBeLessThan, 500)
		})
	})

	Convey("A zero duplicate ratio yields unique ids", t, func() {
		changes := loadgen.GenerateChanges(100, 0, nil, 1)
		seen := map[string]bool{}
		for _, c := range changes {
			So(seen[c.ID], ShouldBeFalse)
			seen[c.ID] = true
		}
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running server", t, func() {
		srv := newServer(t)
		cfg := loadgen.Config{
			BaseURL:        srv.URL,
			Changes:        200,
			DuplicateRatio: 0.25,
			Viewers:        []string{"u1", "ghost"},
			Workers:        4,
			Seed:           42,
		}

		Convey("Every unique change is accepted once and feeds verify", func() {
			var progress bytes.Buffer
			stats, err := loadgen.Run(context.Background(), cfg, logger.Nop(), &progress)
			So(err, ShouldBeNil)
			So(stats.Generated, ShouldEqual, 200)
			So(stats.Accepted+stats.Duplicate, ShouldEqual, 200)
			So(stats.Duplicate, ShouldBeGreaterThan, 0)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.FeedsChecked, ShouldEqual, 1)
			So(stats.FeedsMissing, ShouldEqual, 1)
			So(stats.PostsExplained, ShouldEqual, 3)
			So(stats.Violations, ShouldBeEmpty)
			So(progress.Len(), ShouldEqual, 0)
		})
	})

	Convey("Given an unhealthy server", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := loadgen.Run(context.Background(), loadgen.Config{BaseURL: srv.URL}, logger.Nop(), nil)
		So(err, ShouldNotBeNil)
		var status *loadgen.ErrStatus
		So(errors.As(err, &status), ShouldBeTrue)
		So(status.Code, ShouldEqual, http.StatusServiceUnavailable)
	})

	Convey("Given a server that misorders a feed", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {})
		mux.HandleFunc("/feed/u1", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[{"id":"a","score":1},{"id":"b","score":5}]`))
		})
		mux.HandleFunc("/feed/u1/explain/", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		stats, err := loadgen.Run(context.Background(), loadgen.Config{BaseURL: srv.URL, Viewers: []string{"u1"}}, logger.Nop(), nil)
		So(errors.Is(err, loadgen.ErrVerification), ShouldBeTrue)
		So(len(stats.Violations), ShouldEqual, 1)
	})
}
