package saw

// rawReadWriter is the minimal non-blocking byte transport a [Stream]
// drives: Read/Write return a non-negative byte count or an error, with
// [IsWouldBlock] distinguishing "nothing to transfer right now" from an
// actual failure. Keeping the read/write task state machines below behind
// this interface, rather than against a concrete fd type, is what lets
// them be exercised in stream_test.go without a real socket; the fd-backed
// implementation lives in stream_linux.go.
type rawReadWriter interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

// readTask is the state of one in-flight asynchronous read: a buffer plus
// the min/max bounds and how much has been read so far.
type readTask struct {
	buf         []byte
	min, max    int
	alreadyRead int
}

// writeTask is the write-side counterpart.
type writeTask struct {
	buf            []byte
	alreadyWritten int
}

// Stream wraps a non-blocking byte transport with read/write task
// helpers, translating byte-level readiness into conveyor values. Only one
// read and one write task may be in flight at a time.
type Stream struct {
	loop *Loop
	rw   rawReadWriter
	fd   int // -1 when not fd-backed (tests drive pumpRead/pumpWrite directly)
	port EventPort

	registered bool

	readWaiters       []*OneTimeFeeder[struct{}]
	writeWaiters      []*OneTimeFeeder[struct{}]
	disconnectWaiters []*OneTimeFeeder[struct{}]
	disconnected      bool

	rt           *readTask
	rtCommit     func(n int)
	readDoneConv *Conveyor[int]
	readDoneFeed *OneTimeFeeder[int]

	wt            *writeTask
	wtCommit      func(n int)
	writeDoneConv *Conveyor[int]
	writeDoneFeed *OneTimeFeeder[int]
}

func newStream(loop *Loop, port EventPort, rw rawReadWriter, fd int) *Stream {
	return &Stream{loop: loop, rw: rw, fd: fd, port: port}
}

// FD implements [FdOwner].
func (s *Stream) FD() int { return s.fd }

func (s *Stream) ensureRegistered() error {
	if s.registered || s.port == nil {
		return nil
	}
	// Every interest bit is requested up front rather than toggled per
	// task: epoll is armed edge-triggered (see reactor_linux.go), so a
	// single subscription that always watches read/write/hangup and lets
	// Notify decide what's relevant is simpler and just as correct as
	// Modify-ing the mask in and out of flight.
	if err := s.port.Subscribe(s, PollReadable|PollWritable|PollReadHangup); err != nil {
		return err
	}
	s.registered = true
	return nil
}

// Notify implements [FdOwner]; the port calls it on readiness.
func (s *Stream) Notify(mask PollMask) {
	if mask.Has(PollReadHangup) || mask.Has(PollError) {
		s.onDisconnected()
	}
	if mask.Has(PollReadable) || mask.Has(PollReadHangup) {
		s.fireReadWaiters()
		s.pumpRead()
	}
	if mask.Has(PollWritable) {
		s.fireWriteWaiters()
		s.pumpWrite()
	}
}

// Read performs one raw, synchronous, non-blocking read; it may return
// [IsWouldBlock] if nothing is available right now.
func (s *Stream) Read(buf []byte) (int, error) { return s.rw.Read(buf) }

// Write performs one raw, synchronous, non-blocking write; it may return
// [IsWouldBlock].
func (s *Stream) Write(buf []byte) (int, error) { return s.rw.Write(buf) }

// Close releases the stream's underlying transport, unsubscribing from the
// reactor first if it was ever registered.
func (s *Stream) Close() error {
	if s.registered && s.port != nil {
		s.port.Unsubscribe(s)
		s.registered = false
	}
	return s.rw.Close()
}

// ReadReady returns a conveyor that fires once, the next time the stream
// becomes readable.
func (s *Stream) ReadReady() (*Conveyor[struct{}], error) {
	if err := s.ensureRegistered(); err != nil {
		return nil, err
	}
	conv, feeder := NewOneTimeConveyorAndFeeder[struct{}](s.loop)
	s.readWaiters = append(s.readWaiters, feeder)
	return conv, nil
}

// WriteReady returns a conveyor that fires once, the next time the stream
// becomes writable.
func (s *Stream) WriteReady() (*Conveyor[struct{}], error) {
	if err := s.ensureRegistered(); err != nil {
		return nil, err
	}
	conv, feeder := NewOneTimeConveyorAndFeeder[struct{}](s.loop)
	s.writeWaiters = append(s.writeWaiters, feeder)
	return conv, nil
}

// OnReadDisconnected returns a conveyor that fires once the peer has
// disconnected; if disconnection already happened, it resolves
// immediately.
func (s *Stream) OnReadDisconnected() (*Conveyor[struct{}], error) {
	if s.disconnected {
		return NewImmediateConveyor(s.loop, struct{}{}), nil
	}
	if err := s.ensureRegistered(); err != nil {
		return nil, err
	}
	conv, feeder := NewOneTimeConveyorAndFeeder[struct{}](s.loop)
	s.disconnectWaiters = append(s.disconnectWaiters, feeder)
	return conv, nil
}

func (s *Stream) onDisconnected() {
	if s.disconnected {
		return
	}
	s.disconnected = true
	waiters := s.disconnectWaiters
	s.disconnectWaiters = nil
	for _, f := range waiters {
		f.Feed(struct{}{})
	}
}

func (s *Stream) fireReadWaiters() {
	if len(s.readWaiters) == 0 {
		return
	}
	waiters := s.readWaiters
	s.readWaiters = nil
	for _, f := range waiters {
		f.Feed(struct{}{})
	}
}

func (s *Stream) fireWriteWaiters() {
	if len(s.writeWaiters) == 0 {
		return
	}
	waiters := s.writeWaiters
	s.writeWaiters = nil
	for _, f := range waiters {
		f.Feed(struct{}{})
	}
}

// ReadAsync starts an asynchronous read task: at least min and at most
// len(buf) bytes will be placed into buf before the conveyor returned by
// [Stream.ReadDone] fires with the byte count. It is an error to call
// this while a read task is already in flight.
func (s *Stream) ReadAsync(buf []byte, min int) error {
	if s.rt != nil {
		return CriticalError("saw: read already in flight on this stream")
	}
	if err := s.ensureRegistered(); err != nil {
		return err
	}
	s.rt = &readTask{buf: buf, min: min, max: len(buf)}
	conv, feeder := NewOneTimeConveyorAndFeeder[int](s.loop)
	s.readDoneConv, s.readDoneFeed = conv, feeder
	s.pumpRead()
	return nil
}

// ReadDone returns the conveyor tied to the most recently started read
// task (nil if [Stream.ReadAsync] has never been called).
func (s *Stream) ReadDone() *Conveyor[int] { return s.readDoneConv }

// WriteAsync starts an asynchronous write task: all of buf will be written
// before the conveyor returned by [Stream.WriteDone] fires with len(buf).
// It is an error to call this while a write task is already in flight.
func (s *Stream) WriteAsync(buf []byte) error {
	if s.wt != nil {
		return CriticalError("saw: write already in flight on this stream")
	}
	if err := s.ensureRegistered(); err != nil {
		return err
	}
	s.wt = &writeTask{buf: buf}
	conv, feeder := NewOneTimeConveyorAndFeeder[int](s.loop)
	s.writeDoneConv, s.writeDoneFeed = conv, feeder
	s.pumpWrite()
	return nil
}

// WriteDone returns the conveyor tied to the most recently started write
// task (nil if [Stream.WriteAsync] has never been called).
func (s *Stream) WriteDone() *Conveyor[int] { return s.writeDoneConv }

// ReadAsyncBuffer starts an asynchronous read task into b's current write
// segment, committing the produced bytes via WriteAdvance when the task
// completes. The read targets one contiguous segment; min must fit inside
// it, which RequireSpace arranges for growable buffers and a wrapped ring
// reports as a recoverable error.
func (s *Stream) ReadAsyncBuffer(b ByteBuffer, min int) error {
	if err := b.RequireSpace(min); err != nil {
		return err
	}
	seg := b.WriteSegment()
	if len(seg) < min {
		return RecoverableError("buffer write segment smaller than requested minimum")
	}
	if s.rt != nil {
		return CriticalError("saw: read already in flight on this stream")
	}
	// ReadAsync may complete synchronously, so the commit must be in place
	// before it runs.
	s.rtCommit = b.WriteAdvance
	if err := s.ReadAsync(seg, min); err != nil {
		s.rtCommit = nil
		return err
	}
	return nil
}

// WriteAsyncBuffer starts an asynchronous write task draining b's current
// read segment, consuming the written bytes via ReadAdvance when the task
// completes. One call drains one contiguous segment; a ring whose stored
// bytes wrap needs a second call for the remainder.
func (s *Stream) WriteAsyncBuffer(b ByteBuffer) error {
	seg := b.ReadSegment()
	if len(seg) == 0 {
		return RecoverableError("buffer has no bytes to write")
	}
	if s.wt != nil {
		return CriticalError("saw: write already in flight on this stream")
	}
	// WriteAsync may complete synchronously, so the commit must be in place
	// before it runs.
	s.wtCommit = b.ReadAdvance
	if err := s.WriteAsync(seg); err != nil {
		s.wtCommit = nil
		return err
	}
	return nil
}

// pumpRead drives the read task until it either completes, fails,
// discovers disconnection, or would block.
func (s *Stream) pumpRead() {
	for s.rt != nil {
		t := s.rt
		n, err := s.rw.Read(t.buf[t.alreadyRead:t.max])
		if err != nil {
			if IsWouldBlock(err) {
				return
			}
			s.failRead(CriticalErrorf("saw: read failed: %v", err))
			return
		}
		if n == 0 {
			s.onDisconnected()
			s.failRead(DisconnectedError("peer closed during read"))
			return
		}
		t.alreadyRead += n
		if t.alreadyRead >= t.min {
			s.completeRead(t.alreadyRead)
			return
		}
	}
}

func (s *Stream) completeRead(n int) {
	feeder := s.readDoneFeed
	if s.rtCommit != nil {
		s.rtCommit(n)
		s.rtCommit = nil
	}
	s.rt = nil
	feeder.Feed(n)
}

func (s *Stream) failRead(err Error) {
	feeder := s.readDoneFeed
	s.rt = nil
	s.rtCommit = nil
	feeder.Fail(err)
}

// pumpWrite is the write-side counterpart of pumpRead.
func (s *Stream) pumpWrite() {
	for s.wt != nil {
		t := s.wt
		n, err := s.rw.Write(t.buf[t.alreadyWritten:])
		if err != nil {
			if IsWouldBlock(err) {
				return
			}
			s.failWrite(CriticalErrorf("saw: write failed: %v", err))
			return
		}
		t.alreadyWritten += n
		if t.alreadyWritten >= len(t.buf) {
			s.completeWrite(t.alreadyWritten)
			return
		}
	}
}

func (s *Stream) completeWrite(n int) {
	feeder := s.writeDoneFeed
	if s.wtCommit != nil {
		s.wtCommit(n)
		s.wtCommit = nil
	}
	s.wt = nil
	feeder.Feed(n)
}

func (s *Stream) failWrite(err Error) {
	feeder := s.writeDoneFeed
	s.wt = nil
	s.wtCommit = nil
	feeder.Fail(err)
}
