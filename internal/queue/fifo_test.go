package queue_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/All-less/continuum/internal/queue"
)

var _ = Describe("Fifo", func() {
	It("starts empty", func() {
		q := queue.NewFifo[string](3)
		Expect(q.Len()).To(Equal(0))

		_, ok := q.Dequeue()
		Expect(ok).To(BeFalse())
	})

	It("enqueues and dequeues in order", func() {
		q := queue.NewFifo[string](3)

		q.Enqueue("a")
		q.Enqueue("b")
		Expect(q.Len()).To(Equal(2))

		val, ok := q.Peek()
		Expect(ok).To(BeTrue())
		Expect(val).To(Equal("a"))

		val, ok = q.Dequeue()
		Expect(ok).To(BeTrue())
		Expect(val).To(Equal("a"))
		Expect(q.Len()).To(Equal(1))
	})

	It("evicts the oldest element once capacity is exceeded", func() {
		q := queue.NewFifo[int](3)

		q.Enqueue(1)
		q.Enqueue(2)
		q.Enqueue(3)
		Expect(q.Elements()).To(Equal([]int{1, 2, 3}))

		q.Enqueue(4)
		Expect(q.Len()).To(Equal(3))
		Expect(q.Elements()).To(Equal([]int{2, 3, 4}))
	})

	It("treats a non-positive capacity as unbounded", func() {
		q := queue.NewFifo[int](0)
		for i := 0; i < 20; i++ {
			q.Enqueue(i)
		}
		Expect(q.Len()).To(Equal(20))
	})
})
