package monitoring

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ProgressBar", func() {
	It("should not move more items than in progress", func() {
		bar := &ProgressBar{total: 10}

		bar.IncrementInProgress(2)
		bar.MoveInProgressToFinished(5)
		bar.IncrementFinished(1)

		Expect(bar.InProgress()).To(Equal(uint64(0)))
		Expect(bar.Finished()).To(Equal(uint64(3)))
	})

	It("should get a unique id from the monitor", func() {
		m := NewMonitor()

		a := m.CreateProgressBar("A", 1)
		b := m.CreateProgressBar("B", 1)

		Expect(a.ID()).NotTo(Equal(b.ID()))
		Expect(a.Name()).To(Equal("A"))
	})
})
