package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net"
	"testing"
	"time"

	"zonecounter/internal/logger"
	"zonecounter/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: uint8(x), G: 80, B: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func startListener(t *testing.T, names map[string]string) (*Listener, net.Conn) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	l := NewListener(0, names, logger.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, conn) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return l, client
}

func sendFrame(t *testing.T, conn net.Conn, data []byte, chunk int) {
	t.Helper()
	for start := 0; start < len(data); start += chunk {
		end := start + chunk
		if end > len(data) {
			end = len(data)
		}
		_, err := conn.Write(data[start:end])
		require.NoError(t, err)
	}
}

func TestListener_ReassemblesFrames(t *testing.T) {
	l, client := startListener(t, map[string]string{"127.0.0.1": "entrance"})
	frame := encodeJPEG(t, 64, 48)

	sendFrame(t, client, frame, 500)

	require.Eventually(t, func() bool { return len(l.Cameras()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"entrance"}, l.Cameras())

	got, err := l.Source("entrance").Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, frame, got.Data)
	assert.Equal(t, 64, got.Width)
	assert.Equal(t, 48, got.Height)
}

func TestListener_UnknownCameraName(t *testing.T) {
	l, client := startListener(t, nil)

	sendFrame(t, client, encodeJPEG(t, 16, 16), 1000)

	require.Eventually(t, func() bool { return len(l.Cameras()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "unknown_127.0.0.1", l.Cameras()[0])
}

func TestListener_DropsMalformedFrames(t *testing.T) {
	l, client := startListener(t, nil)

	sendFrame(t, client, []byte{0xFF, 0xD8, 0x00, 0x01, 0xFF, 0xD9}, 100)
	sendFrame(t, client, encodeJPEG(t, 8, 8), 1000)

	require.Eventually(t, func() bool { return len(l.Cameras()) == 1 }, time.Second, 5*time.Millisecond)
	f, err := l.Source(l.Cameras()[0]).Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, f.Width)
}

func TestSource_DeliversEachFrameOnce(t *testing.T) {
	l := NewListener(0, nil, logger.NewDiscard())
	src := l.Source("cam")

	_, err := src.Capture(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoFrame)

	l.store("cam", encodeJPEG(t, 10, 10))
	_, err = src.Capture(context.Background())
	require.NoError(t, err)
	_, err = src.Capture(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrNoFrame)

	l.store("cam", encodeJPEG(t, 12, 10))
	f, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, f.Width)

	assert.True(t, src.Status().Live)
	assert.False(t, src.Status().Deferred())
	require.NoError(t, src.Close())
	_, err = src.Capture(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrSourceEnded)
}
