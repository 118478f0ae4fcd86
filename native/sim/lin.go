package sim

import (
	"encoding/binary"
	"sync"

	"github.com/LoveWonYoung/vci4go/native"
)

const (
	linBitrateAuto   = 0
	linBitrateMin    = 1000
	linBitrateMax    = 20000
	linErrNoAnswer   = 4
	linFeatureMaster = 0x01
	linFeatureAuto   = 0x02
)

func (p *port) linLineStatus() native.LinLineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := native.LinLineStatus{OpMode: p.opMode, Bitrate: p.linBitrate}
	if !p.started {
		st.Status |= native.LinStatusInInit
	}
	return st
}

func (p *port) linMonitors() []*linMonitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*linMonitor, 0, len(p.monitors))
	for m := range p.monitors {
		out = append(out, m)
	}
	return out
}

func (p *port) deliverLin(msg native.LinMsg) {
	msg.Time = p.drv.timestamp()
	p.mu.Lock()
	if msg.Info.Type == native.LinMsgTypeData {
		p.linBus = append(p.linBus, msg)
	}
	p.mu.Unlock()
	for _, m := range p.linMonitors() {
		m.receive(msg)
	}
}

func (p *port) linInfo(value uint8) {
	msg := native.LinMsg{Info: native.LinMsgInfo{Type: native.LinMsgTypeInfo, DLen: 1}}
	msg.Data[0] = value
	p.deliverLin(msg)
}

// InjectLin delivers a LIN frame from a remote node to every monitor.
func (p *Port) InjectLin(msg native.LinMsg) {
	p.p.deliverLin(msg)
}

// LinFrames returns every LIN data frame seen on the bus.
func (p *Port) LinFrames() []native.LinMsg {
	p.p.mu.Lock()
	defer p.p.mu.Unlock()
	return append([]native.LinMsg(nil), p.p.linBus...)
}

type linSocket struct {
	object
	port *port
}

func (s *linSocket) Capabilities() (native.LinCapabilities, native.Status) {
	if st := s.drv.fault("LinSocket.Capabilities"); st != native.StatusOK {
		return native.LinCapabilities{}, st
	}
	return native.LinCapabilities{
		Features:   s.port.cfg.Features,
		ClockFreq:  s.port.cfg.ClockFreq,
		TscDivisor: 1,
	}, native.StatusOK
}

func (s *linSocket) LineStatus() (native.LinLineStatus, native.Status) {
	return s.port.linLineStatus(), native.StatusOK
}

func (s *linSocket) CreateMonitor(exclusive bool) (native.LinMonitor, native.Status) {
	if st := s.drv.fault("LinSocket.CreateMonitor"); st != native.StatusOK {
		return nil, st
	}
	p := s.port
	p.mu.Lock()
	for m := range p.monitors {
		if m.exclusive || exclusive {
			p.mu.Unlock()
			return nil, native.EAccessDenied
		}
	}
	m := &linMonitor{port: p, exclusive: exclusive}
	p.monitors[m] = struct{}{}
	p.mu.Unlock()

	s.AddRef()
	m.init(s.drv, func() {
		p.mu.Lock()
		delete(p.monitors, m)
		p.mu.Unlock()
		s.Release()
	})
	return m, native.StatusOK
}

type linControl struct {
	object
	port *port
}

func (c *linControl) InitLine(init native.LinInitLine) native.Status {
	if st := c.drv.fault("LinControl.InitLine"); st != native.StatusOK {
		return st
	}
	switch {
	case init.Bitrate == linBitrateAuto:
		if c.port.cfg.Features&linFeatureAuto == 0 {
			return native.ENotSupported
		}
	case init.Bitrate < linBitrateMin || init.Bitrate > linBitrateMax:
		return native.EInvalidArg
	}
	if init.OpMode&native.LinOpModeMaster != 0 && c.port.cfg.Features&linFeatureMaster == 0 {
		return native.ENotSupported
	}
	p := c.port
	p.mu.Lock()
	p.opMode = init.OpMode
	p.linBitrate = init.Bitrate
	p.initialized = true
	p.started = false
	p.mu.Unlock()
	return native.StatusOK
}

func (c *linControl) ResetLine() native.Status {
	p := c.port
	p.mu.Lock()
	p.started = false
	p.initialized = false
	p.responses = make(map[uint8]native.LinMsg)
	p.mu.Unlock()
	p.linInfo(native.CanInfoReset)
	return native.StatusOK
}

func (c *linControl) StartLine() native.Status {
	if st := c.drv.fault("LinControl.StartLine"); st != native.StatusOK {
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
	p.linInfo(native.CanInfoStart)
	return native.StatusOK
}

func (c *linControl) StopLine() native.Status {
	p := c.port
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	p.linInfo(native.CanInfoStop)
	return native.StatusOK
}

// WriteMessage either updates the response table (send == false) or, as
// master, transmits a frame. An id-only frame is answered from the table.
func (c *linControl) WriteMessage(send bool, msg native.LinMsg) native.Status {
	if st := c.drv.fault("LinControl.WriteMessage"); st != native.StatusOK {
		return st
	}
	if msg.Info.DLen > native.LinMaxData {
		return native.EInvalidArg
	}
	p := c.port
	p.mu.Lock()
	if !send {
		p.responses[msg.Info.PID] = msg
		p.mu.Unlock()
		return native.StatusOK
	}
	if !p.started || p.opMode&native.LinOpModeMaster == 0 {
		p.mu.Unlock()
		return native.EInvalidState
	}
	resp, answered := p.responses[msg.Info.PID]
	p.mu.Unlock()

	if msg.Info.Flags&native.LinFlagIDO == 0 {
		p.deliverLin(msg)
		return native.StatusOK
	}
	if !answered {
		errMsg := native.LinMsg{Info: native.LinMsgInfo{PID: msg.Info.PID, Type: native.LinMsgTypeError, DLen: 1}}
		errMsg.Data[0] = linErrNoAnswer
		p.deliverLin(errMsg)
		return native.StatusOK
	}
	resp.Info.Type = native.LinMsgTypeData
	resp.Info.Flags &^= native.LinFlagSOR | native.LinFlagIDO
	p.deliverLin(resp)
	return native.StatusOK
}

type linMonitor struct {
	object
	port      *port
	exclusive bool

	mu     sync.Mutex
	rx     *fifo
	active bool
}

func (m *linMonitor) Initialize(fifoSize uint16) native.Status {
	if st := m.drv.fault("LinMonitor.Initialize"); st != native.StatusOK {
		return st
	}
	if fifoSize == 0 {
		return native.EInvalidArg
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return native.EInvalidState
	}
	m.rx = newFifo(binary.Size(native.LinMsg{}), fifoSize, nil)
	return native.StatusOK
}

func (m *linMonitor) Activate() native.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rx == nil {
		return native.ENotInitialized
	}
	m.active = true
	return native.StatusOK
}

func (m *linMonitor) Deactivate() native.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rx == nil {
		return native.ENotInitialized
	}
	m.active = false
	return native.StatusOK
}

func (m *linMonitor) Status() (native.LinMonitorStatus, native.Status) {
	st := native.LinMonitorStatus{LineStatus: m.port.linLineStatus()}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		st.Activated = 1
	}
	if m.rx != nil {
		st.RxFifoLoad = m.rx.load()
		if m.rx.hasOverrun() {
			st.RxOverrun = 1
		}
	}
	return st, native.StatusOK
}

func (m *linMonitor) Reader() (native.FifoReader, native.Status) {
	m.mu.Lock()
	rx := m.rx
	m.mu.Unlock()
	if rx == nil {
		return nil, native.ENotInitialized
	}
	r := &fifoReader{fifoView{f: rx}}
	m.AddRef()
	r.init(m.drv, func() { m.Release() })
	return r, native.StatusOK
}

func (m *linMonitor) receive(msg native.LinMsg) {
	m.mu.Lock()
	rx, active := m.rx, m.active
	m.mu.Unlock()
	if rx == nil || !active {
		return
	}
	rx.push(encode(&msg))
}
