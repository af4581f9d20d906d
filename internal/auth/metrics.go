package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics は認証処理のカウンターです。nil の場合は何も記録しません。
type Metrics struct {
	logins     *prometheus.CounterVec
	rejections *prometheus.CounterVec
}

// NewMetrics はカウンターを作成し、reg に登録します。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_guard_rejections_total",
			Help: "Requests rejected by the auth guard by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.rejections)
	}
	return m
}

func (m *Metrics) login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) reject(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}
