package sim

import (
	"encoding/binary"
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

const (
	canClockFreq = 80000000
	linClockFreq = 1000000
	cmsMaxTicks  = 0xFFFF
	featureFd    = 0x2000 | 0x4000
)

type ctxSlot struct {
	used   bool
	msg    native.CanMsg2
	cycle  uint16
	incr   uint8
	index  uint8
	status uint8
	repeat uint16
	sent   uint16
}

// port is the state of one bus socket shared by all objects opened on it.
type port struct {
	drv   *Driver
	index int
	cfg   PortConfig

	mu          sync.Mutex
	controlled  bool
	initialized bool
	started     bool
	opMode      uint8
	exMode      uint8
	btr0, btr1  uint8
	sdr, fdr    native.CanBtp
	accFilter   map[uint8][2]uint32
	filterIDs   map[uint8][][2]uint32
	channels    map[*channel]struct{}
	exclusive   *channel
	bus         []native.CanMsg2
	slots       [native.CanMaxCtxMsgs]ctxSlot
	running     bool

	linBitrate uint16
	responses  map[uint8]native.LinMsg
	monitors   map[*linMonitor]struct{}
	linBus     []native.LinMsg
}

func newPort(drv *Driver, index int, cfg PortConfig) *port {
	if cfg.ClockFreq == 0 {
		cfg.ClockFreq = canClockFreq
		if cfg.Bus == native.BusTypeLin {
			cfg.ClockFreq = linClockFreq
		}
	}
	return &port{
		drv:       drv,
		index:     index,
		cfg:       cfg,
		accFilter: make(map[uint8][2]uint32),
		filterIDs: make(map[uint8][][2]uint32),
		channels:  make(map[*channel]struct{}),
		responses: make(map[uint8]native.LinMsg),
		monitors:  make(map[*linMonitor]struct{}),
	}
}

func (p *port) claimControl() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.controlled {
		return false
	}
	p.controlled = true
	return true
}

func (p *port) releaseControl() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controlled = false
}

func (p *port) statusBits() uint32 {
	var st uint32
	if !p.started {
		st |= native.CanStatusInInit
	}
	for ch := range p.channels {
		rx, tx, ok := ch.fifos()
		if !ok {
			continue
		}
		if tx.fill() > 0 {
			st |= native.CanStatusTxPending
		}
		if rx.hasOverrun() {
			st |= native.CanStatusOverrun
		}
	}
	return st
}

func (p *port) activeChannels() []*channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*channel, 0, len(p.channels))
	for ch := range p.channels {
		out = append(out, ch)
	}
	return out
}

// deliver puts a frame on the bus. Every active channel except the sender
// receives it; the sender only when self reception was requested.
func (p *port) deliver(msg native.CanMsg2, from *channel) {
	msg.Time = p.drv.timestamp()
	p.mu.Lock()
	if msg.Info.Type() == native.CanMsgTypeData {
		p.bus = append(p.bus, msg)
	}
	p.mu.Unlock()

	rx := msg
	rx.Info = rx.Info.WithAccept(0xFF)
	for _, ch := range p.activeChannels() {
		if ch == from && !msg.Info.Has(native.InfoSRR) {
			continue
		}
		ch.receive(rx)
	}
}

func (p *port) info(value uint8) {
	var msg native.CanMsg2
	msg.Info = msg.Info.WithType(native.CanMsgTypeInfo).WithDLC(1)
	msg.Data[0] = value
	p.deliver(msg, nil)
}

func (p *port) flushAll() {
	for _, ch := range p.activeChannels() {
		ch.flush()
	}
}

func (p *port) lineStatus() native.CanLineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return native.CanLineStatus{
		OpMode: p.opMode,
		BtReg0: p.btr0,
		BtReg1: p.btr1,
		Status: p.statusBits(),
	}
}

func (p *port) lineStatus2() native.CanLineStatus2 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return native.CanLineStatus2{
		OpMode: p.opMode,
		ExMode: p.exMode,
		BtpSdr: p.sdr,
		BtpFdr: p.fdr,
		Status: p.statusBits(),
	}
}

// Port drives a simulated bus from tests.
type Port struct {
	p *port
}

// Inject delivers a frame from a remote node to every active channel.
func (p *Port) Inject(msg native.CanMsg2) {
	msg.Info = msg.Info.With(native.InfoSRR, false)
	p.p.deliver(msg, nil)
}

// Frames returns every data frame that went on the bus.
func (p *Port) Frames() []native.CanMsg2 {
	p.p.mu.Lock()
	defer p.p.mu.Unlock()
	return append([]native.CanMsg2(nil), p.p.bus...)
}

func (p *Port) Started() bool {
	p.p.mu.Lock()
	defer p.p.mu.Unlock()
	return p.p.started
}

// Tick runs one scheduler cycle: every busy slot transmits once.
func (p *Port) Tick() {
	p.p.mu.Lock()
	if !p.p.running || !p.p.started {
		p.p.mu.Unlock()
		return
	}
	var out []native.CanMsg2
	for i := range p.p.slots {
		s := &p.p.slots[i]
		if !s.used || s.status != native.CtxStatusBusy {
			continue
		}
		out = append(out, s.msg)
		s.advance()
		if s.repeat > 0 {
			s.sent++
			if s.sent >= s.repeat {
				s.status = native.CtxStatusDone
			}
		}
	}
	p.p.mu.Unlock()

	for _, msg := range out {
		p.p.deliver(msg, nil)
	}
}

func (s *ctxSlot) advance() {
	switch s.incr {
	case 1:
		s.msg.ID++
	case 2:
		s.msg.Data[s.index]++
	case 3:
		if int(s.index)+1 < len(s.msg.Data) {
			v := binary.LittleEndian.Uint16(s.msg.Data[s.index:]) + 1
			binary.LittleEndian.PutUint16(s.msg.Data[s.index:], v)
		}
	}
}

type canSocket struct {
	object
	port *port
}

func (s *canSocket) Capabilities() (native.CanCapabilities, native.Status) {
	if st := s.drv.fault("CanSocket.Capabilities"); st != native.StatusOK {
		return native.CanCapabilities{}, st
	}
	return native.CanCapabilities{
		CtrlType:    uint16(s.port.cfg.Ctrl),
		BusCoupling: 2,
		Features:    s.port.cfg.Features,
		ClockFreq:   s.port.cfg.ClockFreq,
		TscDivisor:  1,
		CmsDivisor:  80,
		CmsMaxTicks: cmsMaxTicks,
		DtxDivisor:  1,
		DtxMaxTicks: 0xFFFF,
	}, native.StatusOK
}

func (s *canSocket) LineStatus() (native.CanLineStatus, native.Status) {
	return s.port.lineStatus(), native.StatusOK
}

func (s *canSocket) newChannel(exclusive, fd bool) (*channel, native.Status) {
	if st := s.drv.fault("CanSocket.CreateChannel"); st != native.StatusOK {
		return nil, st
	}
	p := s.port
	p.mu.Lock()
	if p.exclusive != nil || (exclusive && len(p.channels) > 0) {
		p.mu.Unlock()
		return nil, native.EAccessDenied
	}
	ch := &channel{port: p, fd: fd, exclusive: exclusive}
	p.channels[ch] = struct{}{}
	if exclusive {
		p.exclusive = ch
	}
	p.mu.Unlock()

	s.AddRef()
	ch.init(s.drv, func() {
		p.mu.Lock()
		delete(p.channels, ch)
		if p.exclusive == ch {
			p.exclusive = nil
		}
		p.mu.Unlock()
		s.Release()
	})
	return ch, native.StatusOK
}

func (s *canSocket) CreateChannel(exclusive bool) (native.CanChannel, native.Status) {
	ch, st := s.newChannel(exclusive, false)
	if st != native.StatusOK {
		return nil, st
	}
	return &canChannel{ch}, st
}

type canSocket2 struct {
	canSocket
}

func (s *canSocket2) Capabilities() (native.CanCapabilities2, native.Status) {
	if st := s.drv.fault("CanSocket.Capabilities"); st != native.StatusOK {
		return native.CanCapabilities2{}, st
	}
	caps := native.CanCapabilities2{
		CtrlType:    uint16(s.port.cfg.Ctrl),
		BusCoupling: 2,
		Features:    s.port.cfg.Features,
		CanClkFreq:  s.port.cfg.ClockFreq,
		SdrRangeMin: native.CanBtp{Mode: 0, BPS: 1, TS1: 1, TS2: 1, SJW: 1},
		SdrRangeMax: native.CanBtp{Mode: 0, BPS: 1024, TS1: 256, TS2: 128, SJW: 128},
		TscClkFreq:  s.port.cfg.ClockFreq,
		TscDivisor:  1,
		CmsClkFreq:  s.port.cfg.ClockFreq,
		CmsDivisor:  80,
		CmsMaxTicks: cmsMaxTicks,
		DtxClkFreq:  s.port.cfg.ClockFreq,
		DtxDivisor:  1,
		DtxMaxTicks: 0xFFFF,
	}
	if s.port.cfg.Features&featureFd != 0 {
		caps.FdrRangeMin = native.CanBtp{Mode: 0, BPS: 1, TS1: 1, TS2: 1, SJW: 1}
		caps.FdrRangeMax = native.CanBtp{Mode: 0, BPS: 32, TS1: 32, TS2: 16, SJW: 16, TDO: 64}
	}
	return caps, native.StatusOK
}

func (s *canSocket2) LineStatus() (native.CanLineStatus2, native.Status) {
	return s.port.lineStatus2(), native.StatusOK
}

func (s *canSocket2) CreateChannel(exclusive bool) (native.CanChannel2, native.Status) {
	ch, st := s.newChannel(exclusive, true)
	if st != native.StatusOK {
		return nil, st
	}
	return &canChannel2{ch}, st
}

type canControl struct {
	object
	port *port
}

func (c *canControl) ResetLine() native.Status {
	if st := c.drv.fault("CanControl.ResetLine"); st != native.StatusOK {
		return st
	}
	p := c.port
	p.mu.Lock()
	p.started = false
	p.initialized = false
	p.accFilter = make(map[uint8][2]uint32)
	p.filterIDs = make(map[uint8][][2]uint32)
	p.mu.Unlock()
	p.info(native.CanInfoReset)
	return native.StatusOK
}

func (c *canControl) StartLine() native.Status {
	if st := c.drv.fault("CanControl.StartLine"); st != native.StatusOK {
		return st
	}
	p := c.port
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return native.EInvalidState
	}
	p.started = true
	p.mu.Unlock()
	p.info(native.CanInfoStart)
	p.flushAll()
	return native.StatusOK
}

func (c *canControl) StopLine() native.Status {
	if st := c.drv.fault("CanControl.StopLine"); st != native.StatusOK {
		return st
	}
	p := c.port
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	p.info(native.CanInfoStop)
	return native.StatusOK
}

func (c *canControl) filterOp(sel uint8, fn func(p *port)) native.Status {
	if sel != native.CanFilterStd && sel != native.CanFilterExt {
		return native.EInvalidArg
	}
	p := c.port
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return native.EInvalidState
	}
	fn(p)
	return native.StatusOK
}

func (c *canControl) SetAccFilter(sel uint8, code, mask uint32) native.Status {
	return c.filterOp(sel, func(p *port) { p.accFilter[sel] = [2]uint32{code, mask} })
}

func (c *canControl) AddFilterIds(sel uint8, code, mask uint32) native.Status {
	return c.filterOp(sel, func(p *port) { p.filterIDs[sel] = append(p.filterIDs[sel], [2]uint32{code, mask}) })
}

func (c *canControl) RemFilterIds(sel uint8, code, mask uint32) native.Status {
	return c.filterOp(sel, func(p *port) {
		ids := p.filterIDs[sel][:0]
		for _, e := range p.filterIDs[sel] {
			if e != [2]uint32{code, mask} {
				ids = append(ids, e)
			}
		}
		p.filterIDs[sel] = ids
	})
}

func (c *canControl) DetectBaud(timeoutMs uint16, table *native.CanBtrTable) native.Status {
	if st := c.drv.fault("CanControl.DetectBaud"); st != native.StatusOK {
		return st
	}
	if table == nil || table.Count == 0 || int(table.Count) > native.CanBtrTableSize {
		return native.EInvalidArg
	}
	for i := 0; i < int(table.Count); i++ {
		if table.Btr0[i] == c.port.cfg.BusBtr0 && table.Btr1[i] == c.port.cfg.BusBtr1 {
			table.Index = uint8(i)
			return native.StatusOK
		}
	}
	table.Index = 0xFF
	return native.ETimeout
}

func (c *canControl) InitLine(init native.CanInitLine) native.Status {
	if st := c.drv.fault("CanControl.InitLine"); st != native.StatusOK {
		return st
	}
	if init.BtReg0 == 0 && init.BtReg1 == 0 {
		return native.EInvalidArg
	}
	p := c.port
	p.mu.Lock()
	p.opMode = init.OpMode
	p.exMode = 0
	p.btr0, p.btr1 = init.BtReg0, init.BtReg1
	p.initialized = true
	p.started = false
	p.mu.Unlock()
	return native.StatusOK
}

type canControl2 struct {
	*canControl
}

func (c *canControl2) DetectBaud(opMode, exMode uint8, timeoutMs uint16, table *native.CanBtpTable) native.Status {
	if st := c.drv.fault("CanControl.DetectBaud"); st != native.StatusOK {
		return st
	}
	if table == nil || table.Count == 0 || int(table.Count) > native.CanBtpTableSize {
		return native.EInvalidArg
	}
	for i := 0; i < int(table.Count); i++ {
		if table.Btp[i].Sdr == c.port.cfg.BusBitrate2 {
			table.Index = uint8(i)
			return native.StatusOK
		}
	}
	table.Index = 0xFF
	return native.ETimeout
}

func (c *canControl2) InitLine(init native.CanInitLine2) native.Status {
	if st := c.drv.fault("CanControl.InitLine"); st != native.StatusOK {
		return st
	}
	if init.BtpSdr.BPS == 0 {
		return native.EInvalidArg
	}
	if init.ExMode&0x02 != 0 && c.port.cfg.Features&featureFd == 0 {
		return native.ENotSupported
	}
	p := c.port
	p.mu.Lock()
	p.opMode = init.OpMode
	p.exMode = init.ExMode
	p.sdr, p.fdr = init.BtpSdr, init.BtpFdr
	p.initialized = true
	p.started = false
	p.mu.Unlock()
	return native.StatusOK
}

// channel is shared by the classic and FD channel interfaces; fd selects
// the FIFO entry layout.
type channel struct {
	object
	port      *port
	fd        bool
	exclusive bool

	mu          sync.Mutex
	initialized bool
	active      bool
	rx, tx      *fifo
	filterMode  map[uint8]uint8
	filterSize  uint32
}

func (c *channel) entrySize() int {
	if c.fd {
		return binary.Size(native.CanMsg2{})
	}
	return binary.Size(native.CanMsg{})
}

func (c *channel) initialize(rxSize, txSize uint16) native.Status {
	if st := c.drv.fault("CanChannel.Initialize"); st != native.StatusOK {
		return st
	}
	if rxSize == 0 || txSize == 0 {
		return native.EInvalidArg
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return native.EInvalidState
	}
	c.rx = newFifo(c.entrySize(), rxSize, nil)
	c.tx = newFifo(c.entrySize(), txSize, c.flush)
	c.filterMode = map[uint8]uint8{
		native.CanFilterStd: native.CanFilterModePass,
		native.CanFilterExt: native.CanFilterModePass,
	}
	c.initialized = true
	return native.StatusOK
}

func (c *channel) Activate() native.Status {
	if st := c.drv.fault("CanChannel.Activate"); st != native.StatusOK {
		return st
	}
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return native.ENotInitialized
	}
	c.active = true
	c.mu.Unlock()
	c.flush()
	return native.StatusOK
}

func (c *channel) Deactivate() native.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return native.ENotInitialized
	}
	c.active = false
	return native.StatusOK
}

func (c *channel) fifos() (rx, tx *fifo, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rx, c.tx, c.initialized
}

func (c *channel) Reader() (native.FifoReader, native.Status) {
	rx, _, ok := c.fifos()
	if !ok {
		return nil, native.ENotInitialized
	}
	r := &fifoReader{fifoView{f: rx}}
	c.AddRef()
	r.init(c.drv, func() { c.Release() })
	return r, native.StatusOK
}

func (c *channel) Writer() (native.FifoWriter, native.Status) {
	_, tx, ok := c.fifos()
	if !ok {
		return nil, native.ENotInitialized
	}
	w := &fifoWriter{fifoView{f: tx}}
	c.AddRef()
	w.init(c.drv, func() { c.Release() })
	return w, native.StatusOK
}

func (c *channel) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *channel) receive(msg native.CanMsg2) {
	rx, _, ok := c.fifos()
	if !ok || !c.isActive() {
		return
	}
	if c.fd {
		rx.push(encode(&msg))
		return
	}
	if msg.Info.Has(native.InfoEDL) {
		return
	}
	v1 := native.CanMsg{Time: msg.Time, ID: msg.ID, Info: msg.Info}
	copy(v1.Data[:], msg.Data[:])
	rx.push(encode(&v1))
}

// flush moves queued transmit entries onto the bus once the line runs.
func (c *channel) flush() {
	_, tx, ok := c.fifos()
	if !ok || !c.isActive() {
		return
	}
	c.port.mu.Lock()
	started := c.port.started
	c.port.mu.Unlock()
	if !started {
		return
	}
	for _, entry := range tx.drain() {
		var msg native.CanMsg2
		if c.fd {
			_ = decode(entry, &msg)
		} else {
			var v1 native.CanMsg
			_ = decode(entry, &v1)
			msg = native.CanMsg2{ID: v1.ID, Info: v1.Info}
			copy(msg.Data[:], v1.Data[:])
		}
		c.port.deliver(msg, c)
	}
}

func (c *channel) load() (rxLoad, txLoad uint8, overrun bool) {
	rx, tx, ok := c.fifos()
	if !ok {
		return 0, 0, false
	}
	return rx.load(), tx.load(), rx.hasOverrun()
}

type canChannel struct{ *channel }

func (c *canChannel) Initialize(rxSize, txSize uint16) native.Status {
	return c.initialize(rxSize, txSize)
}

func (c *canChannel) Status() (native.CanChanStatus, native.Status) {
	rxLoad, txLoad, overrun := c.load()
	st := native.CanChanStatus{
		LineStatus: c.port.lineStatus(),
		RxFifoLoad: rxLoad,
		TxFifoLoad: txLoad,
	}
	if c.isActive() {
		st.Activated = 1
	}
	if overrun {
		st.RxOverrun = 1
	}
	return st, native.StatusOK
}

type canChannel2 struct{ *channel }

func (c *canChannel2) Initialize(rxSize, txSize uint16, filterSize uint32, filterMode uint8) native.Status {
	if st := c.initialize(rxSize, txSize); st != native.StatusOK {
		return st
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterSize = filterSize
	if filterMode != native.CanFilterModeInvalid {
		c.filterMode[native.CanFilterStd] = filterMode
		c.filterMode[native.CanFilterExt] = filterMode
	}
	return native.StatusOK
}

func (c *canChannel2) Status() (native.CanChanStatus2, native.Status) {
	rxLoad, txLoad, overrun := c.load()
	st := native.CanChanStatus2{
		LineStatus: c.port.lineStatus2(),
		RxFifoLoad: rxLoad,
		TxFifoLoad: txLoad,
	}
	if c.isActive() {
		st.Activated = 1
	}
	if overrun {
		st.RxOverrun = 1
	}
	return st, native.StatusOK
}

func (c *canChannel2) FilterMode(sel uint8) (uint8, native.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return 0, native.ENotInitialized
	}
	mode, ok := c.filterMode[sel]
	if !ok {
		return 0, native.EInvalidArg
	}
	return mode, native.StatusOK
}

func (c *canChannel2) SetFilterMode(sel, mode uint8) (uint8, native.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return 0, native.ENotInitialized
	}
	prev, ok := c.filterMode[sel]
	if !ok {
		return 0, native.EInvalidArg
	}
	if c.active {
		return prev, native.EInvalidState
	}
	c.filterMode[sel] = mode
	return prev, native.StatusOK
}

func (c *canChannel2) filterOp(sel uint8) native.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return native.ENotInitialized
	}
	if _, ok := c.filterMode[sel]; !ok {
		return native.EInvalidArg
	}
	if c.active {
		return native.EInvalidState
	}
	return native.StatusOK
}

func (c *canChannel2) SetAccFilter(sel uint8, code, mask uint32) native.Status { return c.filterOp(sel) }
func (c *canChannel2) AddFilterIds(sel uint8, code, mask uint32) native.Status { return c.filterOp(sel) }
func (c *canChannel2) RemFilterIds(sel uint8, code, mask uint32) native.Status { return c.filterOp(sel) }

type canScheduler struct {
	object
	port *port
}

func (s *canScheduler) Suspend() native.Status {
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	s.port.running = false
	return native.StatusOK
}

func (s *canScheduler) Resume() native.Status {
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	s.port.running = true
	return native.StatusOK
}

func (s *canScheduler) Reset() native.Status {
	if st := s.drv.fault("CanScheduler.Reset"); st != native.StatusOK {
		return st
	}
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	s.port.running = false
	s.port.slots = [native.CanMaxCtxMsgs]ctxSlot{}
	return native.StatusOK
}

func (s *canScheduler) Status() (native.CanSchedulerStatus, native.Status) {
	if st := s.drv.fault("CanScheduler.Status"); st != native.StatusOK {
		return native.CanSchedulerStatus{}, st
	}
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	var st native.CanSchedulerStatus
	if s.port.running {
		st.TaskStat = 1
	}
	for i, slot := range s.port.slots {
		st.MsgStat[i] = slot.status
	}
	return st, native.StatusOK
}

func (s *canScheduler) add(msg native.CanMsg2, cycle uint16, incr, index uint8, dataLen int) (uint32, native.Status) {
	if st := s.drv.fault("CanScheduler.AddMessage"); st != native.StatusOK {
		return 0, st
	}
	if cycle == 0 || uint32(cycle) > cmsMaxTicks || incr > 3 || int(index) >= dataLen {
		return 0, native.EInvalidArg
	}
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	for i := range s.port.slots {
		if !s.port.slots[i].used {
			s.port.slots[i] = ctxSlot{used: true, msg: msg, cycle: cycle, incr: incr, index: index}
			return uint32(i), native.StatusOK
		}
	}
	return 0, native.ENoMoreItems
}

func (s *canScheduler) AddMessage(msg native.CanCyclicTxMsg) (uint32, native.Status) {
	m := native.CanMsg2{ID: msg.ID, Info: msg.Info}
	copy(m.Data[:], msg.Data[:])
	return s.add(m, msg.CycleTime, msg.IncrMode, msg.ByteIndex, native.CanSdlcMax)
}

func (s *canScheduler) slot(handle uint32) (*ctxSlot, native.Status) {
	if handle >= native.CanMaxCtxMsgs || !s.port.slots[handle].used {
		return nil, native.EInvalidHandle
	}
	return &s.port.slots[handle], native.StatusOK
}

func (s *canScheduler) RemMessage(handle uint32) native.Status {
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	if _, st := s.slot(handle); st != native.StatusOK {
		return st
	}
	s.port.slots[handle] = ctxSlot{}
	return native.StatusOK
}

func (s *canScheduler) StartMessage(handle uint32, repeat uint16) native.Status {
	if st := s.drv.fault("CanScheduler.StartMessage"); st != native.StatusOK {
		return st
	}
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	slot, st := s.slot(handle)
	if st != native.StatusOK {
		return st
	}
	slot.status = native.CtxStatusBusy
	slot.repeat = repeat
	slot.sent = 0
	return native.StatusOK
}

func (s *canScheduler) StopMessage(handle uint32) native.Status {
	s.port.mu.Lock()
	defer s.port.mu.Unlock()
	slot, st := s.slot(handle)
	if st != native.StatusOK {
		return st
	}
	slot.status = native.CtxStatusDone
	return native.StatusOK
}

type canScheduler2 struct {
	*canScheduler
}

func (s *canScheduler2) AddMessage(msg native.CanCyclicTxMsg2) (uint32, native.Status) {
	m := native.CanMsg2{ID: msg.ID, Info: msg.Info, Data: msg.Data}
	return s.add(m, msg.CycleTime, msg.IncrMode, msg.ByteIndex, native.CanFdlcMax)
}
