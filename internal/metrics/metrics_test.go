package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue はレジストリから指定メトリクスの値を取り出すヘルパー。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	var total float64
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordTokenMinted_IncrementsCounter はトークン発行カウンタが種別ごとに増加することを検証する。
func TestRecordTokenMinted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenMinted("visit")
	c.RecordTokenMinted("visit")
	c.RecordTokenMinted("exchange")

	if got := counterValue(t, reg, "growthgate_token_minted_total"); got != 3 {
		t.Errorf("token_minted_total = %v, want 3", got)
	}
}

// TestRecordClaim_SplitsWonAndLost はクレーム結果が勝敗別に記録されることを検証する。
func TestRecordClaim_SplitsWonAndLost(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordClaim(true)
	c.RecordClaim(false)
	c.RecordClaim(false)

	if got := counterValue(t, reg, "growthgate_claim_won_total"); got != 1 {
		t.Errorf("claim_won_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "growthgate_claim_lost_total"); got != 2 {
		t.Errorf("claim_lost_total = %v, want 2", got)
	}
}

// TestRecordDuplicateGrant_IncrementsPerReason は重複付与カウンタが理由別に増加することを検証する。
func TestRecordDuplicateGrant_IncrementsPerReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDuplicateGrant("profile_name")
	c.RecordDuplicateGrant("referral_referred")

	if got := counterValue(t, reg, "growthgate_duplicate_grant_total"); got != 2 {
		t.Errorf("duplicate_grant_total = %v, want 2", got)
	}
}

// TestRecordHTTPStatus_LabelsByCode はステータスコード別に記録されることを検証する。
func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)

	if got := counterValue(t, reg, "growthgate_http_status_total"); got != 3 {
		t.Errorf("http_status_total = %v, want 3", got)
	}
}

// TestHandler_ServesPrometheusFormat は/metricsがスクレイプ可能な形式で応答することを検証する。
func TestHandler_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTokenRejected("claim")
	c.RecordCreditAppended("referral_referrer")
	c.RecordHTTPStatus(200)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	for _, name := range []string{
		"growthgate_token_rejected_total",
		"growthgate_credit_appended_total",
		"growthgate_http_status_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("scrape output missing %s", name)
		}
	}
}
