package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/campusfeed/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEvent_FillRatio(t *testing.T) {
	convey.Convey("Given events with different occupancy", t, func() {
		convey.Convey("When seats are partially taken", func() {
			e := model.Event{ID: "e1", TotalSeats: 10, RegisteredCount: 9}
			convey.So(e.FillRatio(), convey.ShouldAlmostEqual, 0.9)
		})

		convey.Convey("When the event has no seats", func() {
			e := model.Event{ID: "e2", TotalSeats: 0, RegisteredCount: 0}
			convey.Convey("Then it counts as full", func() {
				convey.So(e.FillRatio(), convey.ShouldEqual, 1.0)
			})
		})

		convey.Convey("When the event is overbooked", func() {
			e := model.Event{ID: "e3", TotalSeats: 10, RegisteredCount: 15}
			convey.Convey("Then the ratio is not clamped", func() {
				convey.So(e.FillRatio(), convey.ShouldEqual, 1.5)
			})
		})
	})
}

func TestViewerState(t *testing.T) {
	convey.Convey("Given a viewer following one club", t, func() {
		v := model.NewViewerState("u1", []string{"A"}, map[model.Category]float64{model.CategoryTech: 5})

		convey.So(v.Follows("A"), convey.ShouldBeTrue)
		convey.So(v.Follows("B"), convey.ShouldBeFalse)
		convey.So(v.Affinity(model.CategoryTech), convey.ShouldEqual, 5)
		convey.So(v.Affinity(model.CategoryMusic), convey.ShouldEqual, 0)
		convey.So(v.Followed(), convey.ShouldResemble, []string{"A"})
	})

	convey.Convey("Given a zero viewer", t, func() {
		var v model.ViewerState
		convey.Convey("Then lookups are safe", func() {
			convey.So(v.Follows("A"), convey.ShouldBeFalse)
			convey.So(v.Affinity(model.CategoryTech), convey.ShouldEqual, 0)
		})
	})
}

func TestParseCategory(t *testing.T) {
	convey.Convey("Given category names", t, func() {
		c, err := model.ParseCategory(" tech ")
		convey.So(err, convey.ShouldBeNil)
		convey.So(c, convey.ShouldEqual, model.CategoryTech)

		_, err = model.ParseCategory("Gardening")
		convey.So(errors.Is(err, model.ErrUnknownCategory), convey.ShouldBeTrue)

		convey.So(model.CategoryDrama.Known(), convey.ShouldBeTrue)
		convey.So(model.Category("Chess").Known(), convey.ShouldBeFalse)
	})
}

func TestNormalizeInterests(t *testing.T) {
	convey.Convey("Given raw interest names", t, func() {
		convey.Convey("When they are distinct after normalization", func() {
			got, err := model.NormalizeInterests(map[string]float64{"tech": 5, " Music": 1, "Gardening": 2})
			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldResemble, map[model.Category]float64{
				model.CategoryTech:  5,
				model.CategoryMusic: 1,
				"Gardening":         2,
			})
		})

		convey.Convey("When two names resolve to the same category", func() {
			_, err := model.NormalizeInterests(map[string]float64{"tech": 5, "Tech": 1})
			convey.So(errors.Is(err, model.ErrDuplicateCategory), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, `"Tech" and "tech"`)
		})
	})
}

func TestChange(t *testing.T) {
	convey.Convey("Given change notifications", t, func() {
		convey.So(model.Change{Table: model.TablePosts, Op: model.OpInsert, RowID: "p1"}.Valid(), convey.ShouldBeTrue)
		convey.So(model.Change{Table: "orders", Op: model.OpInsert, RowID: "o1"}.Valid(), convey.ShouldBeFalse)
		convey.So(model.Change{Table: model.TableClubs, Op: "truncate", RowID: "c1"}.Valid(), convey.ShouldBeFalse)
		convey.So(model.Change{Table: model.TableClubs, Op: model.OpDelete}.Valid(), convey.ShouldBeFalse)

		convey.So(model.Change{Table: model.TableEvents}.Global(), convey.ShouldBeTrue)
		convey.So(model.Change{Table: model.TableViewers}.Global(), convey.ShouldBeFalse)
	})
}
