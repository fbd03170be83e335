package coordinator

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
)

// Reasons a connection leaves its coordinator.
const (
	reasonClientClosed = "client_closed"
	reasonKeepAlive    = "keep_alive"
	reasonSlowConsumer = "slow_consumer"
	reasonWriteFailed  = "write_failed"
	reasonPingFailed   = "ping_failed"
)

// connWriter is the only goroutine writing data frames to a socket. It also
// drives the keep-alive pings. Close frames go through WriteControl, which
// gorilla allows concurrently with the writer.
type connWriter struct {
	ws          *websocket.Conn
	clock       clockwork.Clock
	keepAlive   KeepAlive
	metrics     *metrics.RealtimeMetrics
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	onExit      func(reason string)

	pingMutex   sync.Mutex
	outstanding int
}

// newConnWriter starts the writer. onExit runs when the writer quits on its
// own (write failure or keep-alive eviction), never after stop.
func newConnWriter(ws *websocket.Conn, opts Options, onExit func(reason string)) *connWriter {
	w := &connWriter{
		ws:          ws,
		clock:       opts.Clock,
		keepAlive:   opts.KeepAlive,
		metrics:     opts.Metrics,
		sendChannel: make(chan []byte, sendBufferSize),
		doneChannel: make(chan struct{}),
		onExit:      onExit,
	}
	w.configurePongHandler()
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *connWriter) run() {
	reason := w.loop()
	// Release stop() callers before onExit, which goes through the actor.
	w.wg.Done()
	if reason != "" && w.onExit != nil {
		w.onExit(reason)
	}
}

func (w *connWriter) loop() string {
	ticker := w.clock.NewTicker(w.keepAlive.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-w.sendChannel:
			w.updateWriteDeadline()
			if err := w.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return reasonWriteFailed
			}
		case <-ticker.Chan():
			if w.nextPing() {
				w.writeClose(CloseEvicted, "keep-alive timeout")
				return reasonKeepAlive
			}
			w.updateWriteDeadline()
			if err := w.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.metrics.PingFailures.Inc()
				return reasonPingFailed
			}
		case <-w.doneChannel:
			return ""
		}
	}
}

// enqueue queues a frame without blocking. False means the buffer is full.
func (w *connWriter) enqueue(msg []byte) bool {
	select {
	case w.sendChannel <- msg:
		return true
	default:
		return false
	}
}

// nextPing records an outgoing ping. It reports true when the peer already
// left MaxMissedPongs pings unanswered.
func (w *connWriter) nextPing() bool {
	w.pingMutex.Lock()
	defer w.pingMutex.Unlock()
	if w.outstanding >= w.keepAlive.MaxMissedPongs {
		return true
	}
	w.outstanding++
	return false
}

func (w *connWriter) recordPong() {
	w.pingMutex.Lock()
	w.outstanding = 0
	w.pingMutex.Unlock()
}

func (w *connWriter) stop() {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		_ = w.ws.Close()
	})
	w.wg.Wait()
}

// stopGraceful sends a close frame with code and reason before closing.
func (w *connWriter) stopGraceful(code int, reason string) {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		// The close frame must not interleave with a data frame in flight.
		w.wg.Wait()
		w.writeClose(code, reason)
		_ = w.ws.Close()
	})
	w.wg.Wait()
}

func (w *connWriter) writeClose(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.keepAlive.WriteTimeout))
}

func (w *connWriter) configurePongHandler() {
	w.updateReadDeadline()
	w.ws.SetPongHandler(func(string) error {
		w.recordPong()
		w.updateReadDeadline()
		return nil
	})
}

// Socket deadlines are wall-clock; the injected clock only drives the ticker.
func (w *connWriter) updateWriteDeadline() {
	_ = w.ws.SetWriteDeadline(time.Now().Add(w.keepAlive.WriteTimeout))
}

func (w *connWriter) updateReadDeadline() {
	_ = w.ws.SetReadDeadline(time.Now().Add(w.keepAlive.readWindow()))
}
