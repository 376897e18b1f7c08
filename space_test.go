package qbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSpace(t *testing.T) {
	Convey("Given a result space", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		space := newSpace(ctx, time.Hour)

		Reset(func() {
			cancel()
			space.wait()
		})

		Convey("A result stored before awaiting is delivered", func() {
			space.Store("early", "value", nil, time.Minute)

			result := awaitResult(t, space.Await("early"))
			So(result.Value, ShouldEqual, "value")
			So(result.Error, ShouldBeNil)
		})

		Convey("Every waiter registered before the store is woken", func() {
			first := space.Await("late")
			second := space.Await("late")

			space.Store("late", nil, errors.New("boom"), time.Minute)

			So(awaitResult(t, first).Error, ShouldNotBeNil)
			So(awaitResult(t, second).Error.Error(), ShouldEqual, "boom")
		})

		Convey("Expired results are swept", func() {
			start := time.Unix(0, 0)
			space.now = func() time.Time { return start }
			space.Store("short", 1, nil, time.Second)
			space.Store("forever", 2, nil, 0)

			space.now = func() time.Time { return start.Add(time.Minute) }
			space.expire()

			So(space.values, ShouldNotContainKey, "short")
			So(space.values, ShouldContainKey, "forever")
		})

		Convey("Forget drops a result", func() {
			space.Store("gone", 1, nil, time.Minute)
			space.Forget("gone")

			So(space.values, ShouldNotContainKey, "gone")
		})
	})
}
