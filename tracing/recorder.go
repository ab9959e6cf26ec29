// Package tracing records which pipeline stage every traced instruction
// occupies at every cycle, and writes the result as a JSON document that
// pipeline visualizers can read.
package tracing

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tebeka/atexit"
)

// A Writer receives trace entries as they are recorded.
type Writer interface {
	Write(e Entry)
	Flush() error
}

// Recorder tracks the instructions that enter the pipeline inside the trace
// window. An instruction is untracked until BeginRecord accepts it, tracked
// until it reaches the writeback stage, and retired afterwards.
type Recorder struct {
	lock sync.Mutex

	active  bool
	window  Window
	nextID  uint64
	tracked map[uint64]uint64

	entries    []Entry
	numRecords int
	flushed    bool

	writers []Writer
}

// NewRecorder creates an inactive recorder. Nothing is recorded until
// InitTrackData is called.
func NewRecorder() *Recorder {
	return &Recorder{
		tracked: make(map[uint64]uint64),
	}
}

// AddWriter attaches a backend that receives every recorded entry.
func (r *Recorder) AddWriter(w Writer) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.writers = append(r.writers, w)
}

// InitTrackData sets the trace window and activates the recorder. The stage
// descriptions are written at the head of the trace the first time.
func (r *Recorder) InitTrackData(w Window) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.window = w

	if r.active {
		return
	}

	r.active = true
	for _, s := range Stages() {
		r.append(Entry{
			Kind:        KindStage,
			ID:          uint64(s),
			Description: s.String(),
		})
	}
}

// BeginRecord starts tracking an instruction that enters the pipeline at the
// given cycle. Instructions entering outside the window are never tracked and
// their events are dropped.
func (r *Recorder) BeginRecord(seqID uint64, disasm string, cycle uint64) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.active || !r.window.Contains(cycle) {
		return
	}

	if _, found := r.tracked[seqID]; found {
		return
	}

	id := r.nextID
	r.nextID++
	r.tracked[seqID] = id
	r.numRecords++

	r.append(Entry{
		Kind:        KindRecord,
		ID:          id,
		Disassembly: disasm,
	})
}

// LogEvent records that a tracked instruction is in a stage at a cycle. It does
// nothing for untracked and retired instructions. Reaching the writeback stage
// retires the instruction.
func (r *Recorder) LogEvent(seqID uint64, cycle uint64, stage Stage) {
	r.lock.Lock()
	defer r.lock.Unlock()

	id, found := r.tracked[seqID]
	if !found {
		return
	}

	r.append(Entry{
		Kind:  KindEvent,
		ID:    id,
		Cycle: cycle,
		Stage: stage,
	})

	if stage.IsTerminal() {
		delete(r.tracked, seqID)
	}
}

func (r *Recorder) append(e Entry) {
	r.entries = append(r.entries, e)

	for _, w := range r.writers {
		w.Write(e)
	}
}

// IsTracked tells if events of the instruction are currently recorded.
func (r *Recorder) IsTracked(seqID uint64) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, found := r.tracked[seqID]

	return found
}

// Active tells if InitTrackData has been called.
func (r *Recorder) Active() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.active
}

// Window returns the trace window.
func (r *Recorder) Window() Window {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.window
}

// NumTracked returns the number of instructions in flight in the trace.
func (r *Recorder) NumTracked() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.tracked)
}

// NumRecords returns the number of instructions that have been traced.
func (r *Recorder) NumRecords() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.numRecords
}

// NumEntries returns the number of entries in the trace, stage descriptions
// included.
func (r *Recorder) NumEntries() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.entries)
}

// Entries returns a copy of the trace.
func (r *Recorder) Entries() []Entry {
	r.lock.Lock()
	defer r.lock.Unlock()

	list := make([]Entry, len(r.entries))
	copy(list, r.entries)

	return list
}

// Flushed tells if the trace has been saved.
func (r *Recorder) Flushed() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.flushed
}

// SaveToFile flushes the attached writers and writes the trace into
// <filename>.json. Nothing is written if the filename is empty or if no
// instruction has been traced, which makes it safe to call from failure
// handlers that run before tracing started. Only the first successful save
// writes the file. A failing writer does not prevent the file from being
// written; all failures are returned together.
func (r *Recorder) SaveToFile(filename string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	writerErr := r.flushWriters()

	if filename == "" || r.numRecords == 0 || r.flushed {
		return writerErr
	}

	if err := r.writeJSON(filename + ".json"); err != nil {
		return errors.Join(writerErr, err)
	}

	r.flushed = true

	return writerErr
}

func (r *Recorder) flushWriters() error {
	var errs []error
	for _, w := range r.writers {
		if err := w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Recorder) writeJSON(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
	}()

	w := bufio.NewWriter(f)

	if _, err = w.WriteString("[\n"); err != nil {
		return err
	}

	for i, e := range r.entries {
		if i > 0 {
			if _, err = w.WriteString(",\n"); err != nil {
				return err
			}
		}

		b, err := json.Marshal(e)
		if err != nil {
			return err
		}

		if _, err = w.WriteString("\t"); err != nil {
			return err
		}

		if _, err = w.Write(b); err != nil {
			return err
		}
	}

	if _, err = w.WriteString("\n]\n"); err != nil {
		return err
	}

	return w.Flush()
}

// RegisterExitFlush makes sure the trace is saved when the program exits
// through atexit.Exit or atexit.Fatal, including on failure paths.
func (r *Recorder) RegisterExitFlush(filename string) {
	atexit.Register(func() {
		if err := r.SaveToFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save trace to %s.json: %v\n",
				filename, err)
		}
	})
}
