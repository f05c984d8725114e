package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func decodeLines(buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]interface{}{}
		if err := json.Unmarshal([]byte(line), &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		So(Init(), ShouldBeNil)
		So(Get(), ShouldNotBeNil)
		So(Sync(), ShouldBeNil)

		Convey("When initialized with a nil writer", func() {
			So(InitWithWriter(nil), ShouldNotBeNil)
		})
	})
}

func TestLoggerFields(t *testing.T) {
	Convey("Given a logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Named("feed").Named("ranker").Info(ctx, "ranked",
				String("viewer", "u1"),
				Int("posts", 3),
				Error(errors.New("boom")),
			)
			lines := decodeLines(&buf)

			Convey("Then the fields are written as JSON", func() {
				So(lines, ShouldHaveLength, 1)
				So(lines[0]["message"], ShouldEqual, "ranked")
				So(lines[0]["level"], ShouldEqual, "info")
				So(lines[0]["logger"], ShouldEqual, "feed.ranker")
				So(lines[0]["viewer"], ShouldEqual, "u1")
				So(lines[0]["posts"], ShouldEqual, 3.0)
				So(lines[0]["error"], ShouldEqual, "boom")
				So(lines[0]["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level filters debug output", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			defer func() { _ = SetLevelString("info") }()

			Get().Debug(ctx, "hidden")
			Get().Info(ctx, "hidden too")
			Get().Warn(ctx, "shown")

			lines := decodeLines(&buf)
			So(lines, ShouldHaveLength, 1)
			So(lines[0]["message"], ShouldEqual, "shown")
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level names", t, func() {
		for _, lvl := range []string{"debug", "info", "", "WARN", "warning", "error"} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}

func TestNop(t *testing.T) {
	Convey("Given a nop logger", t, func() {
		l := Nop().Named("quiet")
		So(func() {
			l.Info(context.Background(), "nothing")
			l.Error(context.Background(), "still nothing", Error(errors.New("x")))
		}, ShouldNotPanic)
	})
}
