package port

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

type sampleInstr struct {
	seq uint64
}

var _ = Describe("Port", func() {
	var (
		registry *Registry
		writer   *WritePort[int]
		reader   *ReadPort[int]
	)

	BeforeEach(func() {
		registry = NewRegistry()
		writer = NewWritePort[int]("StageA", "A_OUT", 1)
		reader = NewReadPort[int]("StageB", "A_OUT", 2)
		Expect(registry.RegisterWrite(writer)).To(Succeed())
		Expect(registry.RegisterRead(reader)).To(Succeed())
	})

	It("should derive type tags", func() {
		Expect(TagOf[int]()).To(Equal(TypeTag("int")))
		Expect(TagOf[sampleInstr]()).
			To(Equal(TypeTag("github.com/sarchlab/pipesim/sim/port.sampleInstr")))
		Expect(TagOf[*sampleInstr]()).
			To(Equal(TypeTag("*github.com/sarchlab/pipesim/sim/port.sampleInstr")))
		Expect(TagOf[map[string][]*sampleInstr]()).
			To(Equal(TypeTag(
				"map[string][]*github.com/sarchlab/pipesim/sim/port.sampleInstr")))
	})

	It("should panic on a zero bandwidth", func() {
		Expect(func() { NewWritePort[int]("StageA", "X", 0) }).To(Panic())
	})

	It("should panic on an empty key", func() {
		Expect(func() { NewReadPort[int]("StageA", "", 1) }).To(Panic())
	})

	It("should refuse writes before initialization", func() {
		Expect(writer.Write(1, 0)).To(MatchError(ErrNotInitialized))
		Expect(writer.CanWrite(0)).To(BeFalse())
	})

	Context("after initialization", func() {
		BeforeEach(func() {
			Expect(registry.Initialize()).To(Succeed())
		})

		It("should deliver a value after the latency", func() {
			Expect(writer.Write(42, 0)).To(Succeed())

			_, ok := reader.Read(1)
			Expect(ok).To(BeFalse())

			v, ok := reader.Read(2)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(42))

			_, ok = reader.Read(3)
			Expect(ok).To(BeFalse())
		})

		It("should not consume when peeking", func() {
			Expect(writer.Write(42, 0)).To(Succeed())

			Expect(reader.IsReady(1)).To(BeFalse())
			Expect(reader.IsReady(2)).To(BeTrue())
			Expect(reader.Pending()).To(Equal(1))
		})

		It("should fail when bandwidth is exceeded within a cycle", func() {
			Expect(writer.Write(1, 5)).To(Succeed())
			Expect(writer.CanWrite(5)).To(BeFalse())

			err := writer.Write(2, 5)

			Expect(err).To(MatchError(ErrBandwidthExceeded))
			Expect(err.Error()).To(ContainSubstring("A_OUT"))
		})

		It("should reset bandwidth on the next cycle", func() {
			Expect(writer.Write(1, 5)).To(Succeed())
			Expect(writer.CanWrite(6)).To(BeTrue())
			Expect(writer.Write(2, 6)).To(Succeed())
		})

		It("should refuse writes to the past", func() {
			Expect(writer.Write(1, 5)).To(Succeed())
			Expect(writer.Write(2, 4)).To(MatchError(ErrTimeReversal))
		})

		It("should keep the order of values", func() {
			for c := Cycle(0); c < 4; c++ {
				Expect(writer.Write(int(c)*10, c)).To(Succeed())
			}

			for c := Cycle(2); c < 6; c++ {
				v, ok := reader.Read(c)
				Expect(ok).To(BeTrue())
				Expect(v).To(Equal(int(c-2) * 10))
			}
		})

		It("should drop values that were not read in time", func() {
			Expect(writer.Write(1, 0)).To(Succeed())
			Expect(writer.Write(2, 1)).To(Succeed())

			v, ok := reader.Read(3)

			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(2))
			Expect(reader.Lost()).To(Equal(uint64(1)))
		})
	})

	It("should deliver several values per cycle up to the bandwidth", func() {
		registry = NewRegistry()
		wide := NewWritePort[int]("Decode", "WIDE", 2)
		rd := NewReadPort[int]("Execute", "WIDE", 1)
		Expect(registry.RegisterWrite(wide)).To(Succeed())
		Expect(registry.RegisterRead(rd)).To(Succeed())
		Expect(registry.Initialize()).To(Succeed())

		Expect(wide.Write(1, 0)).To(Succeed())
		Expect(wide.Write(2, 0)).To(Succeed())
		Expect(wide.Write(3, 0)).To(MatchError(ErrBandwidthExceeded))

		v1, ok1 := rd.Read(1)
		v2, ok2 := rd.Read(1)
		_, ok3 := rd.Read(1)

		Expect([]bool{ok1, ok2, ok3}).To(Equal([]bool{true, true, false}))
		Expect([]int{v1, v2}).To(Equal([]int{1, 2}))
	})

	It("should fan out to every reader", func() {
		registry = NewRegistry()
		w := NewWritePort[string]("Execute", "BYPASS", 1)
		r1 := NewReadPort[string]("Decode", "BYPASS", 0)
		r2 := NewReadPort[string]("Memory", "BYPASS", 1)
		Expect(registry.RegisterWrite(w)).To(Succeed())
		Expect(registry.RegisterRead(r1)).To(Succeed())
		Expect(registry.RegisterRead(r2)).To(Succeed())
		Expect(registry.Initialize()).To(Succeed())

		Expect(w.Write("x", 3)).To(Succeed())

		v, ok := r1.Read(3)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("x"))

		_, ok = r2.Read(3)
		Expect(ok).To(BeFalse())
		v, ok = r2.Read(4)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("x"))

		Expect(w.Readers()).To(HaveLen(2))
		Expect(r2.Source()).To(BeIdenticalTo(w))
	})

	Describe("TrafficLogger", func() {
		var (
			mockCtrl *gomock.Controller
			printer  *MockPrinter
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			printer = NewMockPrinter(mockCtrl)
			Expect(registry.Initialize()).To(Succeed())
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should log writes, stalls and reads", func() {
			logger := NewTrafficLogger(printer)
			writer.AcceptHook(logger)
			reader.AcceptHook(logger)

			gomock.InOrder(
				printer.EXPECT().Printf("%d,%s,%s,%s,%v\n",
					uint64(0), "Port Write", "StageA", "A_OUT", 7),
				printer.EXPECT().Printf("%d,%s,%s,%s\n",
					uint64(1), "Port Stall", "StageB", "A_OUT"),
				printer.EXPECT().Printf("%d,%s,%s,%s,%v\n",
					uint64(2), "Port Read", "StageB", "A_OUT", 7),
			)

			Expect(writer.Write(7, 0)).To(Succeed())
			reader.Read(1)
			reader.Read(2)
		})
	})
})
