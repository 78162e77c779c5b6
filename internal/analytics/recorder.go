// Package analytics accumulates request, latency, error, auth, and
// rate-limit statistics for the gateway and exposes point-in-time
// snapshots.
package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vvoronin/routegw/internal/metrics"
	"github.com/vvoronin/routegw/internal/observability"
	"github.com/vvoronin/routegw/internal/util"
)

const (
	// maxLatencySamples bounds the latency buffer; the oldest sample is
	// evicted first.
	maxLatencySamples = 1000

	// maxRecentErrors bounds the recent-error ring.
	maxRecentErrors = 100

	// snapshotRecentErrors is how many recent errors a snapshot exposes.
	snapshotRecentErrors = 10
)

// state is the full mutable aggregate. Reset swaps in a fresh zero
// value, so everything resettable lives here.
type state struct {
	requestsTotal      int64
	requestsSuccessful int64
	requestsFailed     int64
	byRoute            map[string]int64
	byMethod           map[string]int64
	byStatusCode       map[int]int64

	latencySamples []time.Duration

	errorsTotal   int64
	errorsByType  map[string]int64
	errorsByRoute map[string]int64
	recentErrors  []ErrorEntry

	authTotal      int64
	authSuccessful int64
	authFailed     int64
	authByMethod   map[string]int64

	rateLimitTotal   int64
	rateLimitBlocked int64
	rateLimitByIP    map[string]int64
	rateLimitByUser  map[string]int64
}

func newState() *state {
	return &state{
		byRoute:         make(map[string]int64),
		byMethod:        make(map[string]int64),
		byStatusCode:    make(map[int]int64),
		errorsByType:    make(map[string]int64),
		errorsByRoute:   make(map[string]int64),
		authByMethod:    make(map[string]int64),
		rateLimitByIP:   make(map[string]int64),
		rateLimitByUser: make(map[string]int64),
	}
}

// Recorder accumulates gateway statistics. All methods are safe for
// concurrent use; a single mutex guards the aggregate so every mutation
// is atomic, keeping total == successful + failed observable at all
// times. Prometheus counters are mirrored on the way in and, being
// monotonic, are not affected by Reset.
type Recorder struct {
	mu     sync.Mutex
	st     *state
	logger observability.Logger
	prom   *metrics.GatewayMetrics
	now    func() time.Time
}

// RecorderOption is a functional option for configuring the recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger for the recorder.
func WithRecorderLogger(logger observability.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithClock overrides the time source. Mainly for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		st:     newState(),
		logger: observability.NopLogger(),
		prom:   metrics.GetGatewayMetrics(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordRequest records one completed request. A nil err counts as
// successful regardless of status code; the transport decides what an
// error is. Errors additionally land in the typed counters and the
// recent-error ring.
func (r *Recorder) RecordRequest(route, method string, status int, latency time.Duration, err error) {
	r.mu.Lock()

	st := r.st
	st.requestsTotal++
	if err != nil {
		st.requestsFailed++
	} else {
		st.requestsSuccessful++
	}
	st.byRoute[route]++
	st.byMethod[method]++
	st.byStatusCode[status]++

	st.latencySamples = append(st.latencySamples, latency)
	if len(st.latencySamples) > maxLatencySamples {
		st.latencySamples = st.latencySamples[1:]
	}

	var errorType string
	if err != nil {
		errorType = util.ErrorType(err)
		st.errorsTotal++
		st.errorsByType[errorType]++
		st.errorsByRoute[route]++
		st.recentErrors = append(st.recentErrors, ErrorEntry{
			Time:    r.now(),
			Route:   route,
			Method:  method,
			Status:  status,
			Type:    errorType,
			Message: err.Error(),
		})
		if len(st.recentErrors) > maxRecentErrors {
			st.recentErrors = st.recentErrors[1:]
		}
	}

	r.mu.Unlock()

	r.prom.RecordRequest(route, method, status, latency)
	if err != nil {
		r.prom.RecordError(route, errorType)
	}
}

// RecordAuth records one reported authentication outcome. The gateway
// only accounts for outcomes; the auth decision happens elsewhere.
func (r *Recorder) RecordAuth(method string, success bool) {
	r.mu.Lock()
	r.st.authTotal++
	if success {
		r.st.authSuccessful++
	} else {
		r.st.authFailed++
	}
	r.st.authByMethod[method]++
	r.mu.Unlock()

	r.prom.RecordAuth(method, success)
}

// RecordRateLimit records one reported rate-limit outcome for the given
// client IP and user.
func (r *Recorder) RecordRateLimit(ip, user string, blocked bool) {
	r.mu.Lock()
	r.st.rateLimitTotal++
	if blocked {
		r.st.rateLimitBlocked++
	}
	if ip != "" {
		r.st.rateLimitByIP[ip]++
	}
	if user != "" {
		r.st.rateLimitByUser[user]++
	}
	r.mu.Unlock()

	r.prom.RecordRateLimit(blocked)
}

// Snapshot returns a deep copy of the current aggregate with derived
// fields computed: success rate, latency percentiles, block rate, and
// the last few recent errors.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.st
	snap := Snapshot{
		TakenAt: r.now(),
		Requests: RequestStats{
			Total:        st.requestsTotal,
			Successful:   st.requestsSuccessful,
			Failed:       st.requestsFailed,
			SuccessRate:  ratePercent(st.requestsSuccessful, st.requestsTotal),
			ByRoute:      copyMap(st.byRoute),
			ByMethod:     copyMap(st.byMethod),
			ByStatusCode: copyIntMap(st.byStatusCode),
		},
		Latency: latencyStats(st.latencySamples),
		Errors: ErrorStats{
			Total:   st.errorsTotal,
			ByType:  copyMap(st.errorsByType),
			ByRoute: copyMap(st.errorsByRoute),
			Recent:  recentTail(st.recentErrors, snapshotRecentErrors),
		},
		Auth: AuthStats{
			Total:      st.authTotal,
			Successful: st.authSuccessful,
			Failed:     st.authFailed,
			ByMethod:   copyMap(st.authByMethod),
		},
		RateLimit: RateLimitStats{
			Total:     st.rateLimitTotal,
			Blocked:   st.rateLimitBlocked,
			BlockRate: ratePercent(st.rateLimitBlocked, st.rateLimitTotal),
			ByIP:      copyMap(st.rateLimitByIP),
			ByUser:    copyMap(st.rateLimitByUser),
		},
	}
	return snap
}

// Reset replaces the aggregate with its zero value. Routes and service
// instances are untouched; Prometheus counters keep running.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.st = newState()
	r.mu.Unlock()

	r.logger.Info("analytics reset")
}

// latencyStats derives min/max/avg and the nearest-rank percentiles
// from the current buffer. With samples sorted ascending,
// p_k = sorted[floor(n*k/100)], index clamped to the last element.
func latencyStats(samples []time.Duration) LatencyStats {
	n := len(samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, s := range sorted {
		sum += s
	}

	return LatencyStats{
		Samples: n,
		Min:     sorted[0],
		Max:     sorted[n-1],
		Avg:     sum / time.Duration(n),
		P50:     nearestRank(sorted, 50),
		P95:     nearestRank(sorted, 95),
		P99:     nearestRank(sorted, 99),
	}
}

// nearestRank returns sorted[floor(n*k/100)], clamped.
func nearestRank(sorted []time.Duration, k int) time.Duration {
	idx := len(sorted) * k / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ratePercent formats numerator/denominator as a percentage string.
// An empty denominator reports "0.00%".
func ratePercent(num, den int64) string {
	if den == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(num)/float64(den)*100)
}

// recentTail copies the last n entries of the ring.
func recentTail(entries []ErrorEntry, n int) []ErrorEntry {
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]ErrorEntry, len(entries))
	copy(out, entries)
	return out
}

func copyMap(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyIntMap(in map[int]int64) map[int]int64 {
	out := make(map[int]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
