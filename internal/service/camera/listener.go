// Package camera receives JPEG frames from network cameras over UDP and
// exposes each camera as a live pipeline source.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"zonecounter/internal/logger"
	"zonecounter/internal/pipeline"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// maxPacket is the largest datagram the cameras send.
const maxPacket = 2048

type latestFrame struct {
	frame pipeline.Frame
	seq   uint64
}

// Listener reassembles JPEG frames from UDP packets and keeps the latest
// complete frame per camera. Packets of one frame start with the JPEG SOI
// marker and the last one ends with EOI.
type Listener struct {
	port   int
	names  map[string]string // camera IP -> display name
	logger *logger.Logger

	mu     sync.RWMutex
	frames map[string]latestFrame
}

// NewListener creates a listener for port. names maps camera IPs to names;
// unknown cameras are called "unknown_<ip>".
func NewListener(port int, names map[string]string, logger *logger.Logger) *Listener {
	if names == nil {
		names = map[string]string{}
	}
	return &Listener{
		port:   port,
		names:  names,
		logger: logger,
		frames: make(map[string]latestFrame),
	}
}

// Run listens on the configured UDP port until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", ":"+strconv.Itoa(l.port))
	if err != nil {
		return fmt.Errorf("listen on UDP port %d: %w", l.port, err)
	}
	l.logger.Info("UDP camera listener started on port %d", l.port)
	return l.Serve(ctx, conn)
}

// Serve reads packets from conn until ctx is done. conn is closed on return.
func (l *Listener) Serve(ctx context.Context, conn net.PacketConn) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buffer := make([]byte, maxPacket)
	assembling := make(map[string]*bytes.Buffer)

	for {
		n, remoteAddr, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		cameraName := l.cameraName(remoteAddr)
		data := buffer[:n]
		imgBuffer, ok := assembling[cameraName]
		if !ok {
			imgBuffer = new(bytes.Buffer)
			assembling[cameraName] = imgBuffer
		}

		if bytes.HasPrefix(data, jpegHeader) {
			imgBuffer.Reset()
		}
		imgBuffer.Write(data)

		if bytes.HasSuffix(data, jpegFooter) {
			fullFrame := make([]byte, imgBuffer.Len())
			copy(fullFrame, imgBuffer.Bytes())
			imgBuffer.Reset()
			l.store(cameraName, fullFrame)
		}
	}
}

func (l *Listener) cameraName(addr net.Addr) string {
	ip := addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if name, ok := l.names[ip]; ok {
		return name
	}
	return "unknown_" + ip
}

func (l *Listener) store(cameraName string, data []byte) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		l.logger.Debug("Dropping malformed frame from %s: %v", cameraName, err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.frames[cameraName]
	l.frames[cameraName] = latestFrame{
		frame: pipeline.Frame{Data: data, Width: cfg.Width, Height: cfg.Height, Timestamp: time.Now()},
		seq:   prev.seq + 1,
	}
}

// Cameras returns the names of cameras that sent at least one frame.
func (l *Listener) Cameras() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.frames))
	for name := range l.frames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Listener) latest(cameraName string) (latestFrame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.frames[cameraName]
	return f, ok
}

// Source returns a live source reading the named camera.
func (l *Listener) Source(cameraName string) *Source {
	return &Source{listener: l, camera: cameraName}
}

// Source delivers each received frame of one camera at most once.
type Source struct {
	listener *Listener
	camera   string

	mu      sync.Mutex
	lastSeq uint64
	closed  bool
}

func (s *Source) Name() string { return "camera:" + s.camera }

func (s *Source) Status() pipeline.SourceStatus {
	return pipeline.SourceStatus{Live: true}
}

// Skip is a no-op: only the latest frame is kept.
func (s *Source) Skip() error { return nil }

// Capture returns the newest frame, or pipeline.ErrNoFrame when nothing new arrived.
func (s *Source) Capture(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pipeline.Frame{}, pipeline.ErrSourceEnded
	}

	f, ok := s.listener.latest(s.camera)
	if !ok || f.seq == s.lastSeq {
		return pipeline.Frame{}, pipeline.ErrNoFrame
	}
	s.lastSeq = f.seq
	return f.frame, nil
}

// Close detaches the source; the listener keeps running.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
