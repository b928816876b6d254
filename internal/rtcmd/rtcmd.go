// Package rtcmd implements the cross-thread command protocol that lets
// a non-RT control goroutine mutate structures owned by the lock-free
// audio goroutine, without the audio side ever waiting for queue space
// or allocating (spec §4.1). The audio side is not lock-free: it takes
// the queue's mutex briefly to peek at and advance the Execute ring.
//
// Two queues connect the two sides: the Execute ring (control→audio)
// and the buffered Cleanup channel (audio→control). A Command is a (Prepare, Execute,
// Cleanup) triple; Prepare runs on the control side before enqueue,
// Execute runs on the audio side inside the callback, Cleanup runs on
// the control side once Execute has completed.
package rtcmd

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// QueueSlots is the minimum ring-buffer capacity (spec §4.1: "sized
// for ≥1024 slots").
const QueueSlots = 1024

// MaxCostPerCall bounds how many abstract cost units the audio thread
// will drain from Execute in a single callback, so one callback is
// never starved by a long run of commands.
const MaxCostPerCall = 100

// Command is one unit of cross-thread work.
//
// Prepare runs on the control goroutine before the command is queued;
// returning an error aborts submission (used for validation). Execute
// runs on the audio goroutine; it returns a cost (>0) once the command
// is done, or 0 to ask for a retry on a later callback (used for
// multi-pass operations, e.g. draining active notes before a song
// swap). Cleanup runs on the control goroutine once Execute has
// returned nonzero, and is responsible for freeing whatever state the
// command's mutation displaced.
type Command struct {
	UserData any
	Prepare  func(userData any) error
	Execute  func(userData any) int
	Cleanup  func(userData any)
}

type instance struct {
	cmd     *Command
	isAsync bool
}

// Queue is the mutex-guarded Execute ring plus the Cleanup channel
// connecting the control side to one audio goroutine. When Started is false, submissions
// execute inline on the calling goroutine — the offline bypass path
// (spec §4.1 "Offline mode").
type Queue struct {
	log *log.Logger

	mu       sync.Mutex
	execute  []instance
	execHead int
	execTail int
	execLen  int

	cleanup     chan instance
	startedOnce bool

	lastFullWarn time.Time
}

// New returns a Queue with the minimum required slot capacity.
func New(logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	return &Queue{
		log:     logger,
		execute: make([]instance, QueueSlots),
		cleanup: make(chan instance, QueueSlots*2),
	}
}

// Start marks the queue as backed by a running audio thread; before
// Start, ExecuteSync/ExecuteAsync run inline (offline mode).
func (q *Queue) Start() {
	q.mu.Lock()
	q.startedOnce = true
	q.mu.Unlock()
}

// Started reports whether an audio thread is draining this queue.
func (q *Queue) Started() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.startedOnce
}

func (q *Queue) pushExecute(inst instance) {
	waited := false
	warnedAt := time.Time{}
	for {
		q.mu.Lock()
		if q.execLen < len(q.execute) {
			q.execute[q.execTail] = inst
			q.execTail = (q.execTail + 1) % len(q.execute)
			q.execLen++
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		waited = true
		if warnedAt.IsZero() || time.Since(warnedAt) >= time.Second {
			q.log.Warn("rt command queue full, producer waiting")
			warnedAt = time.Now()
		}
		time.Sleep(time.Millisecond)
	}
	_ = waited
}

// ExecuteSync runs Prepare inline; on success it enqueues the command
// and blocks the calling goroutine (busy-waiting in 1ms increments on
// queue-full, and draining Cleanup while waiting for its own command
// to complete) until the command's own Execute has completed and its
// Cleanup has run locally. Any other completed async commands observed
// on Cleanup while waiting are dispatched along the way.
func (q *Queue) ExecuteSync(cmd *Command) error {
	if cmd.Prepare != nil {
		if err := cmd.Prepare(cmd.UserData); err != nil {
			return err
		}
	}

	if !q.Started() {
		cost := cmd.Execute(cmd.UserData)
		for cost == 0 {
			cost = cmd.Execute(cmd.UserData)
		}
		if cmd.Cleanup != nil {
			cmd.Cleanup(cmd.UserData)
		}
		return nil
	}

	inst := instance{cmd: cmd, isAsync: false}
	q.pushExecute(inst)

	for {
		other := <-q.cleanup
		if other.cmd == cmd {
			if cmd.Cleanup != nil {
				cmd.Cleanup(cmd.UserData)
			}
			return nil
		}
		if other.cmd.Cleanup != nil {
			other.cmd.Cleanup(other.cmd.UserData)
		}
	}
}

// ExecuteAsync runs Prepare inline; on success it enqueues the command
// without waiting. The command's Cleanup (if any) will be run later,
// either opportunistically by a subsequent ExecuteSync call or by
// DrainCleanup.
func (q *Queue) ExecuteAsync(cmd *Command) error {
	if cmd.Prepare != nil {
		if err := cmd.Prepare(cmd.UserData); err != nil {
			return err
		}
	}

	if !q.Started() {
		cost := cmd.Execute(cmd.UserData)
		for cost == 0 {
			cost = cmd.Execute(cmd.UserData)
		}
		if cmd.Cleanup != nil {
			cmd.Cleanup(cmd.UserData)
		}
		return nil
	}

	q.pushExecute(instance{cmd: cmd, isAsync: true})
	return nil
}

// DrainCleanup dispatches any completed commands currently waiting on
// the Cleanup channel, without blocking. Intended to be polled by an
// idle control-thread loop.
func (q *Queue) DrainCleanup() {
	for {
		select {
		case inst := <-q.cleanup:
			if inst.cmd.Cleanup != nil {
				inst.cmd.Cleanup(inst.cmd.UserData)
			}
		default:
			return
		}
	}
}

// RunAudioThreadDrain is called once at the top of every audio
// callback. It drains up to MaxCostPerCall units of cost from Execute:
// peek the head command, call its Execute; a zero return means "retry
// next callback" and stops the drain; a nonzero return advances past
// the command and, if it has a Cleanup or was submitted synchronously,
// pushes it onto Cleanup for the control side to finish.
//
// Never waits for queue space and never allocates; it holds the queue
// mutex only while peeking at or advancing the head. This is the only
// Queue method safe to call from the audio goroutine.
func (q *Queue) RunAudioThreadDrain() {
	cost := 0
	for cost < MaxCostPerCall {
		q.mu.Lock()
		if q.execLen == 0 {
			q.mu.Unlock()
			return
		}
		inst := q.execute[q.execHead]
		q.mu.Unlock()

		result := inst.cmd.Execute(inst.cmd.UserData)
		if result == 0 {
			return
		}
		cost += result

		q.mu.Lock()
		q.execHead = (q.execHead + 1) % len(q.execute)
		q.execLen--
		q.mu.Unlock()

		if inst.cmd.Cleanup != nil || !inst.isAsync {
			select {
			case q.cleanup <- inst:
			default:
				// Cleanup channel sized at 2x Execute capacity per
				// spec's rb_cleanup sizing; this should never trigger
				// under the documented invariants, so drop rather than
				// block the audio thread if it somehow does.
			}
		}
	}
}

// SwapPointer atomically exchanges the audio side's view of ptr with
// newValue via a sync command, returning the old value for the caller
// to destroy. This is the primary mutation primitive described in spec
// §4.1/§9: a generational-arena-safe stand-in for the source's raw
// pointer swap.
func SwapPointer[T any](q *Queue, ptr *T, newValue T) (old T) {
	cmd := &Command{}
	cmd.Execute = func(any) int {
		old = *ptr
		*ptr = newValue
		return 1
	}
	cmd.UserData = cmd
	_ = q.ExecuteSync(cmd)
	return old
}

// SwapPointerAndCount is SwapPointer's extended form for an
// array+length pair that must be swapped atomically together (e.g. a
// layer list and its count).
func SwapPointerAndCount[T any](q *Queue, ptr *T, newValue T, count *int, newCount int) (old T) {
	cmd := &Command{}
	cmd.Execute = func(any) int {
		old = *ptr
		*ptr = newValue
		*count = newCount
		return 1
	}
	cmd.UserData = cmd
	_ = q.ExecuteSync(cmd)
	return old
}
