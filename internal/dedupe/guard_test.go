package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

func TestClaimKey(t *testing.T) {
	k := model.FactKey{OrderID: "1001", LineNumber: 2, TransactionType: model.Return}
	assert.Equal(t, "salesdw:fact:1001/2/Return", claimKey(DefaultPrefix, k))

	sale := k
	sale.TransactionType = model.Sale
	assert.NotEqual(t, claimKey(DefaultPrefix, k), claimKey(DefaultPrefix, sale))
}
