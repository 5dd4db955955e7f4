package payment

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/court-booking/internal/model"
)

func sign(n Notification, key string) string {
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + key))
	return hex.EncodeToString(sum[:])
}

func TestVerifySignature(t *testing.T) {
	n := Notification{OrderID: "bk_1", StatusCode: "200", GrossAmount: "150.00"}
	n.SignatureKey = sign(n, "server-key")

	assert.True(t, VerifySignature(n, "server-key"))
	assert.False(t, VerifySignature(n, "other-key"))

	n.GrossAmount = "1.00"
	assert.False(t, VerifySignature(n, "server-key"))
}

func TestNotification_Paid(t *testing.T) {
	assert.True(t, Notification{TransactionStatus: "settlement"}.Paid())
	assert.True(t, Notification{TransactionStatus: "capture", FraudStatus: "accept"}.Paid())
	assert.False(t, Notification{TransactionStatus: "capture", FraudStatus: "challenge"}.Paid())
	assert.False(t, Notification{TransactionStatus: "pending"}.Paid())
	assert.False(t, Notification{TransactionStatus: "expire"}.Paid())
}

func TestMidtrans_RefusesFractionalAmounts(t *testing.T) {
	m := NewMidtrans("SB-server-key", false)
	for _, cents := range []int64{3750, 0, -100} {
		_, err := m.CreatePayment(context.Background(), Request{Reference: "bk_1", AmountCents: cents})
		assert.ErrorIs(t, err, model.ErrValidation, cents)
	}
}

func TestFake(t *testing.T) {
	ref := NewReference()
	assert.True(t, strings.HasPrefix(ref, "bk_"))

	intent, err := Fake{}.CreatePayment(context.Background(), Request{Reference: ref, AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, ref, intent.Reference)
	assert.NotEmpty(t, intent.Token)
}
