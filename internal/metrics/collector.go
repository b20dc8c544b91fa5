package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Namespace prefixes every exported metric name.
const Namespace = "logship"

// Drop reasons.
const (
	DropQueueFull    = "queue_full"
	DropClosed       = "closed"
	DropFormatError  = "format_error"
	DropSendFailed   = "send_failed"
	DropNoConnection = "no_connection"
)

// DropReasons lists every reason a record can be dropped for.
var DropReasons = []string{DropQueueFull, DropClosed, DropFormatError, DropSendFailed, DropNoConnection}

// Collector handles metrics collection for a sink.
type Collector struct {
	accepted uint64
	sent     uint64

	bytesSent uint64

	droppedByReason sync.Map // map[string]*atomic.Uint64

	connectAttempts uint64
	connectFailures uint64

	// Performance metrics
	sendCount     uint64
	totalSendTime int64 // nanoseconds
	maxSendTime   int64 // nanoseconds

	queueDepth atomic.Pointer[func() int]
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	c := &Collector{}
	for _, reason := range DropReasons {
		c.droppedByReason.Store(reason, &atomic.Uint64{})
	}
	return c
}

// Stats is a point-in-time snapshot of a Collector.
type Stats struct {
	Accepted        uint64            `json:"accepted"`
	Sent            uint64            `json:"sent"`
	BytesSent       uint64            `json:"bytes_sent"`
	Dropped         uint64            `json:"dropped"`
	DroppedByReason map[string]uint64 `json:"dropped_by_reason"`
	ConnectAttempts uint64            `json:"connect_attempts"`
	ConnectFailures uint64            `json:"connect_failures"`
	QueueDepth      int               `json:"queue_depth"`

	AverageSendTime time.Duration `json:"average_send_time"`
	MaxSendTime     time.Duration `json:"max_send_time"`
}

// SetQueueDepthFunc sets the callback reporting the current buffer depth.
func (c *Collector) SetQueueDepthFunc(fn func() int) {
	c.queueDepth.Store(&fn)
}

// QueueDepth returns the buffer depth, or zero before a callback is set.
func (c *Collector) QueueDepth() int {
	fn := c.queueDepth.Load()
	if fn == nil || *fn == nil {
		return 0
	}
	return (*fn)()
}

// TrackAccepted counts a record handed to the sink.
func (c *Collector) TrackAccepted() {
	atomic.AddUint64(&c.accepted, 1)
}

// TrackSent records a frame successfully written to a backend.
func (c *Collector) TrackSent(bytes int, duration time.Duration) {
	atomic.AddUint64(&c.sent, 1)
	atomic.AddUint64(&c.bytesSent, uint64(bytes))
	atomic.AddUint64(&c.sendCount, 1)
	atomic.AddInt64(&c.totalSendTime, int64(duration))

	// Update max send time
	for {
		oldMax := atomic.LoadInt64(&c.maxSendTime)
		if int64(duration) <= oldMax {
			break
		}
		if atomic.CompareAndSwapInt64(&c.maxSendTime, oldMax, int64(duration)) {
			break
		}
	}
}

// TrackDropped counts a record lost for reason.
func (c *Collector) TrackDropped(reason string) {
	val, _ := c.droppedByReason.LoadOrStore(reason, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// TrackConnect counts a connection attempt and whether it failed.
func (c *Collector) TrackConnect(err error) {
	atomic.AddUint64(&c.connectAttempts, 1)
	if err != nil {
		atomic.AddUint64(&c.connectFailures, 1)
	}
}

// Dropped returns the count for a single drop reason.
func (c *Collector) Dropped(reason string) uint64 {
	if val, ok := c.droppedByReason.Load(reason); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}

// Stats returns a snapshot of all counters.
func (c *Collector) Stats() Stats {
	s := Stats{
		Accepted:        atomic.LoadUint64(&c.accepted),
		Sent:            atomic.LoadUint64(&c.sent),
		BytesSent:       atomic.LoadUint64(&c.bytesSent),
		DroppedByReason: make(map[string]uint64),
		ConnectAttempts: atomic.LoadUint64(&c.connectAttempts),
		ConnectFailures: atomic.LoadUint64(&c.connectFailures),
		QueueDepth:      c.QueueDepth(),
		MaxSendTime:     time.Duration(atomic.LoadInt64(&c.maxSendTime)),
	}

	c.droppedByReason.Range(func(key, value interface{}) bool {
		count := value.(*atomic.Uint64).Load()
		s.DroppedByReason[key.(string)] = count
		s.Dropped += count
		return true
	})

	if n := atomic.LoadUint64(&c.sendCount); n > 0 {
		s.AverageSendTime = time.Duration(atomic.LoadInt64(&c.totalSendTime)) / time.Duration(n)
	}
	return s
}

// Register exposes the collector's counters on reg. Labels are attached to every metric.
func (c *Collector) Register(reg prometheus.Registerer, labels prometheus.Labels) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "records_accepted_total",
			Help:        "Records handed to the sink.",
			ConstLabels: labels,
		}, func() float64 { return float64(atomic.LoadUint64(&c.accepted)) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "records_sent_total",
			Help:        "Frames written to the log collector.",
			ConstLabels: labels,
		}, func() float64 { return float64(atomic.LoadUint64(&c.sent)) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "bytes_sent_total",
			Help:        "Bytes written to the log collector.",
			ConstLabels: labels,
		}, func() float64 { return float64(atomic.LoadUint64(&c.bytesSent)) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "connect_attempts_total",
			Help:        "Connection attempts to the log collector.",
			ConstLabels: labels,
		}, func() float64 { return float64(atomic.LoadUint64(&c.connectAttempts)) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "connect_failures_total",
			Help:        "Failed connection attempts to the log collector.",
			ConstLabels: labels,
		}, func() float64 { return float64(atomic.LoadUint64(&c.connectFailures)) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "queue_depth",
			Help:        "Frames waiting in the buffer.",
			ConstLabels: labels,
		}, func() float64 { return float64(c.QueueDepth()) }),
	}

	reasons := make([]string, 0, len(DropReasons))
	c.droppedByReason.Range(func(key, _ interface{}) bool {
		reasons = append(reasons, key.(string))
		return true
	})
	sort.Strings(reasons)
	for _, reason := range reasons {
		reason := reason
		constLabels := prometheus.Labels{"reason": reason}
		for k, v := range labels {
			constLabels[k] = v
		}
		collectors = append(collectors, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "records_dropped_total",
			Help:        "Records lost before reaching the log collector, by reason.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(c.Dropped(reason)) }))
	}

	var err error
	for _, collector := range collectors {
		err = multierr.Append(err, reg.Register(collector))
	}
	return err
}
