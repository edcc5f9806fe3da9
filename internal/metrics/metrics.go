// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordTokenMinted(kind string)
	RecordTokenRejected(kind string)
	RecordClaim(won bool)
	RecordCreditAppended(reason string)
	RecordDuplicateGrant(reason string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokenMinted     *prometheus.CounterVec
	tokenRejected   *prometheus.CounterVec
	claimWon        prometheus.Counter
	claimLost       prometheus.Counter
	creditAppended  *prometheus.CounterVec
	duplicateGrants *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "growthgate_token_minted_total",
			Help: "発行されたトークンの合計数（種別ラベル付き）",
		}, []string{"kind"}),
		tokenRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "growthgate_token_rejected_total",
			Help: "検証に失敗したトークンの合計数（種別ラベル付き）",
		}, []string{"kind"}),
		claimWon: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "growthgate_claim_won_total",
			Help: "成立した紹介クレームの合計数",
		}),
		claimLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "growthgate_claim_lost_total",
			Help: "クレーム済みの関係への再クレームの合計数",
		}),
		creditAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "growthgate_credit_appended_total",
			Help: "台帳に追記されたクレジット取引の合計数（理由コード別）",
		}, []string{"reason"}),
		duplicateGrants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "growthgate_duplicate_grant_total",
			Help: "重複として拒否された一度限りボーナスの合計数（理由コード別）",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "growthgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.tokenMinted,
		c.tokenRejected,
		c.claimWon,
		c.claimLost,
		c.creditAppended,
		c.duplicateGrants,
		c.httpStatus,
	)

	return c
}

// RecordTokenMinted はトークン発行を記録する。kindは"visit"または"exchange"。
func (c *Collector) RecordTokenMinted(kind string) {
	c.tokenMinted.WithLabelValues(kind).Inc()
}

// RecordTokenRejected はトークン検証失敗を記録する。
func (c *Collector) RecordTokenRejected(kind string) {
	c.tokenRejected.WithLabelValues(kind).Inc()
}

// RecordClaim はクレーム結果を記録する。
func (c *Collector) RecordClaim(won bool) {
	if won {
		c.claimWon.Inc()
	} else {
		c.claimLost.Inc()
	}
}

// RecordCreditAppended は台帳への追記を記録する。
func (c *Collector) RecordCreditAppended(reason string) {
	c.creditAppended.WithLabelValues(reason).Inc()
}

// RecordDuplicateGrant は重複付与の拒否を記録する。
func (c *Collector) RecordDuplicateGrant(reason string) {
	c.duplicateGrants.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
