package stats

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"berith-chain/minefleet/ledger"
)

func TestUpdateAndServe(t *testing.T) {
	m := New()
	m.Update(ledger.Stats{TotalSolutions: 5, DonationSolutions: 1, TotalErrors: 2})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "minefleet_total_solutions 5")
	assert.Contains(t, body, "minefleet_total_errors 2")
}
