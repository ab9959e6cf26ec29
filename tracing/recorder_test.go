package tracing_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sarchlab/pipesim/tracing"
	"go.uber.org/mock/gomock"
)

func eventsOf(entries []tracing.Entry) []tracing.Entry {
	var list []tracing.Entry
	for _, e := range entries {
		if e.Kind == tracing.KindEvent {
			list = append(list, e)
		}
	}

	return list
}

var _ = Describe("Recorder", func() {
	var (
		r   *tracing.Recorder
		dir string
	)

	BeforeEach(func() {
		r = tracing.NewRecorder()

		var err error
		dir, err = os.MkdirTemp("", "pipesim-trace")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
	})

	It("should not track anything before the window is set", func() {
		r.BeginRecord(1, "add r1, r2, r3", 0)
		r.LogEvent(1, 1, tracing.StageDecode)

		Expect(r.Active()).To(BeFalse())
		Expect(r.NumRecords()).To(Equal(0))
		Expect(r.NumEntries()).To(Equal(0))
	})

	It("should describe the stages at the head of the trace", func() {
		r.InitTrackData(tracing.Unbounded())
		r.InitTrackData(tracing.Unbounded())

		entries := r.Entries()
		Expect(entries).To(HaveLen(5))
		Expect(entries[0]).To(Equal(tracing.Entry{
			Kind: tracing.KindStage, ID: 0, Description: "Fetch",
		}))
		Expect(entries[4]).To(Equal(tracing.Entry{
			Kind: tracing.KindStage, ID: 4, Description: "Writeback",
		}))
	})

	It("should only track instructions entering inside the window", func() {
		r.InitTrackData(tracing.From(5).Until(10))

		r.BeginRecord(1, "ld r1, 0(r2)", 3)
		r.LogEvent(1, 4, tracing.StageDecode)
		Expect(r.IsTracked(1)).To(BeFalse())

		r.BeginRecord(2, "add r1, r2, r3", 7)
		Expect(r.IsTracked(2)).To(BeTrue())

		r.LogEvent(2, 9, tracing.StageExecute)
		r.LogEvent(2, 12, tracing.StageWriteback)

		Expect(r.IsTracked(2)).To(BeFalse())
		Expect(r.NumTracked()).To(Equal(0))
		Expect(r.NumRecords()).To(Equal(1))

		entries := r.Entries()
		Expect(entries[5]).To(Equal(tracing.Entry{
			Kind: tracing.KindRecord, ID: 0, Disassembly: "add r1, r2, r3",
		}))
		Expect(eventsOf(entries)).To(Equal([]tracing.Entry{
			{Kind: tracing.KindEvent, ID: 0, Cycle: 9, Stage: tracing.StageExecute},
			{Kind: tracing.KindEvent, ID: 0, Cycle: 12, Stage: tracing.StageWriteback},
		}))
	})

	It("should drop events of retired instructions", func() {
		r.InitTrackData(tracing.Unbounded())
		r.BeginRecord(7, "nop", 0)
		r.LogEvent(7, 4, tracing.StageWriteback)
		r.LogEvent(7, 5, tracing.StageFetch)

		Expect(eventsOf(r.Entries())).To(HaveLen(1))
	})

	It("should ignore a second begin of a tracked instruction", func() {
		r.InitTrackData(tracing.Unbounded())
		r.BeginRecord(7, "nop", 0)
		r.BeginRecord(7, "nop", 1)

		Expect(r.NumRecords()).To(Equal(1))
	})

	It("should give strictly increasing record ids", func() {
		r.InitTrackData(tracing.From(2))

		for seq := uint64(0); seq < 10; seq++ {
			r.BeginRecord(seq, "nop", seq)
		}

		var ids []uint64
		for _, e := range r.Entries() {
			if e.Kind == tracing.KindRecord {
				ids = append(ids, e.ID)
			}
		}

		Expect(ids).To(Equal([]uint64{0, 1, 2, 3, 4, 5, 6, 7}))
	})

	It("should not reuse ids after retirement", func() {
		r.InitTrackData(tracing.Unbounded())
		r.BeginRecord(1, "nop", 0)
		r.LogEvent(1, 4, tracing.StageWriteback)
		r.BeginRecord(1, "nop", 5)
		r.LogEvent(1, 6, tracing.StageFetch)

		events := eventsOf(r.Entries())
		Expect(events[1].ID).To(Equal(uint64(1)))
	})

	It("should not write anything without records", func() {
		Expect(r.SaveToFile("")).To(Succeed())

		name := filepath.Join(dir, "run")
		Expect(r.SaveToFile(name)).To(Succeed())
		Expect(name + ".json").NotTo(BeAnExistingFile())

		r.InitTrackData(tracing.Unbounded())
		Expect(r.SaveToFile(name)).To(Succeed())
		Expect(name + ".json").NotTo(BeAnExistingFile())
		Expect(r.Flushed()).To(BeFalse())
	})

	It("should write the trace as a JSON array once", func() {
		r.InitTrackData(tracing.Unbounded())
		r.BeginRecord(1, "add r1, r2, r3", 0)
		r.LogEvent(1, 0, tracing.StageFetch)

		name := filepath.Join(dir, "run")
		Expect(r.SaveToFile(name)).To(Succeed())
		Expect(r.Flushed()).To(BeTrue())

		content, err := os.ReadFile(name + ".json")
		Expect(err).NotTo(HaveOccurred())

		var doc []map[string]any
		Expect(json.Unmarshal(content, &doc)).To(Succeed())
		Expect(doc).To(HaveLen(7))
		Expect(doc[0]).To(Equal(map[string]any{
			"type": "Stage", "id": 0.0, "description": "Fetch",
		}))
		Expect(doc[5]).To(Equal(map[string]any{
			"type": "Record", "id": 0.0, "disassembly": "add r1, r2, r3",
		}))
		Expect(doc[6]).To(Equal(map[string]any{
			"type": "Event", "id": 0.0, "cycle": 0.0, "stage": 0.0,
		}))

		r.LogEvent(1, 1, tracing.StageDecode)
		Expect(r.SaveToFile(name)).To(Succeed())

		again, err := os.ReadFile(name + ".json")
		Expect(err).NotTo(HaveOccurred())
		Expect(again).To(Equal(content))
	})

	It("should report write failures", func() {
		r.InitTrackData(tracing.Unbounded())
		r.BeginRecord(1, "nop", 0)

		err := r.SaveToFile(filepath.Join(dir, "missing", "run"))

		Expect(err).To(HaveOccurred())
		Expect(r.Flushed()).To(BeFalse())
	})

	Context("with writers", func() {
		var (
			mockCtrl *gomock.Controller
			writer   *MockWriter
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			writer = NewMockWriter(mockCtrl)
			r.AddWriter(writer)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should forward every entry", func() {
			writer.EXPECT().Write(gomock.Any()).Times(5)
			writer.EXPECT().Write(tracing.Entry{Kind: tracing.KindRecord, ID: 0, Disassembly: "nop"})
			writer.EXPECT().
				Write(tracing.Entry{Kind: tracing.KindEvent, ID: 0, Cycle: 3, Stage: tracing.StageMemory})

			r.InitTrackData(tracing.Unbounded())
			r.BeginRecord(1, "nop", 0)
			r.LogEvent(1, 3, tracing.StageMemory)
		})

		It("should flush the writers when saving", func() {
			writer.EXPECT().Flush().Return(nil)

			Expect(r.SaveToFile("")).To(Succeed())
		})

		It("should report writer failures", func() {
			failure := errors.New("disk full")
			writer.EXPECT().Flush().Return(failure)

			Expect(r.SaveToFile("")).To(MatchError(failure))
		})

		It("should still write the trace when a writer fails", func() {
			failure := errors.New("disk full")
			writer.EXPECT().Write(gomock.Any()).AnyTimes()
			writer.EXPECT().Flush().Return(failure)

			r.InitTrackData(tracing.Unbounded())
			r.BeginRecord(1, "nop", 0)

			name := filepath.Join(dir, "run")
			Expect(r.SaveToFile(name)).To(MatchError(failure))
			Expect(name + ".json").To(BeAnExistingFile())
			Expect(r.Flushed()).To(BeTrue())
		})

		It("should flush every writer and report both failures", func() {
			first := errors.New("disk full")
			second := errors.New("database locked")
			other := NewMockWriter(mockCtrl)
			r.AddWriter(other)

			writer.EXPECT().Write(gomock.Any()).AnyTimes()
			other.EXPECT().Write(gomock.Any()).AnyTimes()
			writer.EXPECT().Flush().Return(first)
			other.EXPECT().Flush().Return(second)

			r.InitTrackData(tracing.Unbounded())
			r.BeginRecord(1, "nop", 0)

			err := r.SaveToFile(filepath.Join(dir, "missing", "run"))

			Expect(err).To(MatchError(first))
			Expect(err).To(MatchError(second))
			Expect(r.Flushed()).To(BeFalse())
		})
	})
})
