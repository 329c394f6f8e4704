package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bracket"

// Recorder receives game events. Implementations must be safe for concurrent use.
type Recorder interface {
	GameCreated()
	VoteRecorded()
	Advanced(outcome string)
	StorageRetry(operation string)
}

type prometheusRecorder struct {
	gamesCreated   prometheus.Counter
	votesRecorded  prometheus.Counter
	advances       *prometheus.CounterVec
	storageRetries *prometheus.CounterVec
}

// NewPrometheusRecorder registers the bracket counters on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (Recorder, error) {
	r := &prometheusRecorder{
		gamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_created_total",
			Help:      "Number of games created.",
		}),
		votesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_recorded_total",
			Help:      "Number of votes stored (duplicates excluded).",
		}),
		advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advances_total",
			Help:      "Number of advance calls by outcome.",
		}, []string{"outcome"}),
		storageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Number of operations retried after a transient storage error.",
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{r.gamesCreated, r.votesRecorded, r.advances, r.storageRetries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *prometheusRecorder) GameCreated()            { r.gamesCreated.Inc() }
func (r *prometheusRecorder) VoteRecorded()           { r.votesRecorded.Inc() }
func (r *prometheusRecorder) Advanced(outcome string) { r.advances.WithLabelValues(outcome).Inc() }

func (r *prometheusRecorder) StorageRetry(operation string) {
	r.storageRetries.WithLabelValues(operation).Inc()
}

type noopRecorder struct{}

func NewNoopRecorder() Recorder { return noopRecorder{} }

func (noopRecorder) GameCreated()        {}
func (noopRecorder) VoteRecorded()       {}
func (noopRecorder) Advanced(string)     {}
func (noopRecorder) StorageRetry(string) {}
