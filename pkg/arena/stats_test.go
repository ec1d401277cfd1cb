package arena_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sindarin-lang/rtarena/pkg/arena"
)

func TestStatsAggregateAcrossChildren(t *testing.T) {
	Convey("Given a root with allocations in itself and a child", t, func() {
		root := arena.NewArena(nil, arena.Default, "stats-root")
		child := arena.NewArena(root, arena.Default, "stats-child")

		_, err := root.Alloc(10)
		So(err, ShouldBeNil)
		_, err = child.Alloc(20)
		So(err, ShouldBeNil)

		Convey("Then Stats reports local, child, and total counts", func() {
			s := root.Stats()
			So(s.Handles.Local, ShouldEqual, 1)
			So(s.Handles.Children, ShouldEqual, 1)
			So(s.Handles.Total, ShouldEqual, 2)
			So(s.Bytes.Local, ShouldEqual, 10)
			So(s.Bytes.Children, ShouldEqual, 20)
			So(s.Bytes.Total, ShouldEqual, 30)
		})
	})
}

func TestStatsAfterGC(t *testing.T) {
	Convey("Given a root with a dead handle", t, func() {
		root := arena.NewArena(nil, arena.Default, "stats-gc")
		h, err := root.Alloc(5)
		So(err, ShouldBeNil)
		h.MarkDead()

		Convey("When GC runs", func() {
			arena.GC(root)

			Convey("Then Stats reflects the last cycle's reclaimed counts", func() {
				s := root.Stats()
				So(s.GCRuns, ShouldEqual, uint64(1))
				So(s.LastHandlesFreed, ShouldBeGreaterThanOrEqualTo, 1)
				So(s.LastBytesFreed, ShouldBeGreaterThanOrEqualTo, 5)
			})
		})
	})
}
