package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/kilianp07/taskalloc/config"
	"github.com/kilianp07/taskalloc/core/logger"
	"github.com/kilianp07/taskalloc/core/model"
	"github.com/kilianp07/taskalloc/pkg/export"
	"github.com/kilianp07/taskalloc/simulator"
)

// Platform kinds sent in PlatformStatus.Kind.
const (
	KindAttack  int8 = 1
	KindDefense int8 = 2
)

const metersPerDegree = 111320.0

// ControlHandler reacts to a control message and reports whether it was
// accepted.
type ControlHandler func(ControlType) bool

// Broadcaster turns simulator frames into platform status datagrams for the
// command node and answers its control messages.
type Broadcaster struct {
	cfg    config.TelemetryConfig
	conn   *net.UDPConn
	remote *net.UDPAddr
	log    logger.Logger
	now    func() time.Time
	step   time.Duration

	mu     sync.Mutex
	serial uint32
	prev   map[string]r2.Vec
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the broadcaster logger.
func WithLogger(l logger.Logger) Option { return func(b *Broadcaster) { b.log = logger.OrNop(l) } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(b *Broadcaster) { b.now = now } }

// WithStepInterval sets the simulated time between two frames, used to
// derive platform speed. Defaults to one second.
func WithStepInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.step = d
		}
	}
}

// NewBroadcaster binds cfg.Local and resolves cfg.Remote.
func NewBroadcaster(cfg config.TelemetryConfig, opts ...Option) (*Broadcaster, error) {
	cfg.SetDefaults()
	remote, err := net.ResolveUDPAddr("udp", cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resolve remote: %w", err)
	}
	local, err := net.ResolveUDPAddr("udp", cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resolve local: %w", err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("telemetry: listen: %w", err)
	}
	b := &Broadcaster{
		cfg:    cfg,
		conn:   conn,
		remote: remote,
		log:    logger.Nop{},
		now:    time.Now,
		step:   time.Second,
		prev:   make(map[string]r2.Vec),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// LocalAddr returns the bound address.
func (b *Broadcaster) LocalAddr() *net.UDPAddr { return b.conn.LocalAddr().(*net.UDPAddr) }

// Close releases the socket.
func (b *Broadcaster) Close() error { return b.conn.Close() }

func (b *Broadcaster) header() Header {
	b.mu.Lock()
	b.serial++
	s := b.serial
	b.mu.Unlock()
	return Header{
		SourcePlat:   b.cfg.SourcePlatform,
		ReceivePlat:  b.cfg.DestPlatform,
		Serial:       s,
		CreateTimeMS: uint64(b.now().UnixMilli()),
	}
}

func (b *Broadcaster) send(to *net.UDPAddr, body Body) error {
	frame, err := Encode(b.header(), body)
	if err != nil {
		return err
	}
	if _, err := b.conn.WriteToUDP(frame, to); err != nil {
		sendErrors.Inc()
		return fmt.Errorf("telemetry: send 0x%04x: %w", body.MsgID(), err)
	}
	framesSent.WithLabelValues(fmt.Sprintf("0x%04x", body.MsgID())).Inc()
	return nil
}

// Register announces this node to the command node.
func (b *Broadcaster) Register() error {
	addr := b.LocalAddr()
	return b.send(b.remote, NodeRegistration{
		NodeType: b.cfg.NodeType,
		IP:       addr.IP.String(),
		Port:     uint16(addr.Port),
		Name:     b.cfg.NodeName,
	})
}

// Statuses converts a frame into one status per agent. The formation id is
// the agent's group and the commander is the group's first defense platform.
// Speed and course come from the displacement since the previous call.
func (b *Broadcaster) Statuses(rec export.Record, f simulator.Frame) []PlatformStatus {
	commanders := make(map[int]uint32, len(rec.Groups))
	for _, g := range rec.Groups {
		if len(g.DefenseAgents) > 0 {
			commanders[g.GroupID] = platformID(b.cfg.DefenseBase, g.DefenseAgents[0], uint32(g.GroupID))
		}
	}
	ms := uint64(b.now().UnixMilli())
	mpu := b.cfg.MetersPerUnit
	cosLat := math.Cos(b.cfg.OriginLat * math.Pi / 180)

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PlatformStatus, 0, len(f.Agents))
	for i, a := range f.Agents {
		st := PlatformStatus{
			TimeMS:       ms,
			Latitude:     b.cfg.OriginLat + a.Position.Y*mpu/metersPerDegree,
			Height:       b.cfg.Altitude,
			Amount:       1,
			Task:         1,
			CommanderID:  commanders[a.GroupID],
			FormationID:  uint32(a.GroupID),
			EnergyRemain: 100,
			HealthState:  1,
		}
		if cosLat != 0 {
			st.Longitude = b.cfg.OriginLon + a.Position.X*mpu/(metersPerDegree*cosLat)
		}
		if a.Role == model.RoleDefense {
			st.ID = platformID(b.cfg.DefenseBase, a.ID, uint32(i+1))
			st.Kind = KindDefense
		} else {
			st.ID = platformID(b.cfg.AttackBase, a.ID, uint32(i+1))
			st.Kind = KindAttack
		}
		if last, ok := b.prev[a.ID]; ok {
			d := r2.Sub(a.Position, last)
			st.Speed = r2.Norm(d) * mpu / b.step.Seconds()
			if st.Speed > 0 {
				st.Course = math.Mod(math.Atan2(d.X, d.Y)*180/math.Pi+360, 360)
			}
		}
		b.prev[a.ID] = a.Position
		out = append(out, st)
	}
	return out
}

// Broadcast sends the status of every agent in f.
func (b *Broadcaster) Broadcast(rec export.Record, f simulator.Frame) error {
	var errs []error
	for _, st := range b.Statuses(rec, f) {
		if err := b.send(b.remote, st); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		b.log.Warnf("frame %d: %d of %d status messages failed", f.Step, len(errs), len(f.Agents))
	}
	return errors.Join(errs...)
}

// Serve reads control messages until ctx is done, passing each to h and
// replying with a feedback message to the sender.
func (b *Broadcaster) Serve(ctx context.Context, h ControlHandler) error {
	buf := make([]byte, 2048)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
			return err
		}
		n, from, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("telemetry: read: %w", err)
		}
		_, body, err := Decode(buf[:n])
		if err != nil {
			b.log.Warnf("drop datagram from %s: %v", from, err)
			continue
		}
		ctrl, ok := body.(Control)
		if !ok {
			b.log.Debugf("ignore message 0x%04x from %s", body.MsgID(), from)
			continue
		}
		controlReceived.WithLabelValues(ctrl.Type.String()).Inc()
		result := int8(0)
		if h != nil && h(ctrl.Type) {
			result = 1
		}
		b.log.Infof("control %s from %s, result %d", ctrl.Type, from, result)
		if err := b.send(from, ControlFeedback{Type: ctrl.Type, Result: result}); err != nil {
			b.log.Errorf("control feedback: %v", err)
		}
	}
}

// platformID is base plus the numeric suffix of id, or base plus fallback
// when id has none.
func platformID(base uint32, id string, fallback uint32) uint32 {
	digits := strings.TrimLeftFunc(id, func(r rune) bool { return r < '0' || r > '9' })
	if n, err := strconv.ParseUint(digits, 10, 32); err == nil && digits != "" {
		return base + uint32(n)
	}
	return base + fallback
}
