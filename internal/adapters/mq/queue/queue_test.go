package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func change(id string) Change {
	return Change{ID: id, Path: "events/" + id}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When a change is enqueued and dequeued", func() {
			So(q.Enqueue(ctx, change("c1")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)
			got := <-q.Dequeue(ctx)

			Convey("Then it comes back unchanged", func() {
				So(got.ID, ShouldEqual, "c1")
				So(q.Len(ctx), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, change("c1")), ShouldBeTrue)
			So(q.Publish(ctx, change("c2")), ShouldBeTrue)

			Convey("Then further changes are rejected", func() {
				So(q.Enqueue(ctx, change("c3")), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(q.Enqueue(cctx, change("c1")), ShouldBeFalse)
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, change("c1")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue fails but queued changes drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, change("c2")), ShouldBeFalse)
				var ids []string
				for c := range q.Dequeue(ctx) {
					ids = append(ids, c.ID)
				}
				So(ids, ShouldResemble, []string{"c1"})
			})
		})
	})

	Convey("Given concurrent producers", t, func() {
		q := NewInMemoryQueue(WithCapacity(1000))
		var wg sync.WaitGroup
		for p := 0; p < 10; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					q.Enqueue(ctx, change(fmt.Sprintf("%d-%d", p, i)))
				}
			}(p)
		}
		wg.Wait()

		Convey("Then every change is buffered", func() {
			So(q.Len(ctx), ShouldEqual, 500)
		})
	})
}
