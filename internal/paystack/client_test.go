package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClientMissingSecretKey(t *testing.T) {
	client := NewClient("https://api.paystack.co", "", zaptest.NewLogger(t))

	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Amount: 5000, Currency: "NGN", Email: "a@b.test", Reference: "abc_1",
	})
	assert.ErrorIs(t, err, ErrMissingSecretKey)

	_, err = client.ListTransactions(context.Background(), "CUS_x", "")
	assert.ErrorIs(t, err, ErrMissingSecretKey)
}

func TestClientInitializeTransaction(t *testing.T) {
	var gotAuth string
	var gotBody InitializeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"access_code":       "ac_123",
				"authorization_url": "https://checkout.paystack.com/ac_123",
				"reference":         gotBody.Reference,
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_abc", zaptest.NewLogger(t))
	resp, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Amount:    150000,
		Currency:  "NGN",
		Email:     "buyer@example.test",
		Reference: "trxhash_1700000000",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_test_abc", gotAuth)
	assert.Equal(t, int64(150000), gotBody.Amount)
	assert.Equal(t, "ac_123", resp.AccessCode)
	assert.Equal(t, "https://checkout.paystack.com/ac_123", resp.AuthorizationURL)
	assert.Equal(t, "trxhash_1700000000", resp.Reference)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid amount",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_abc", zaptest.NewLogger(t))
	_, err := client.VerifyTransaction(context.Background(), "ref_1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid amount", apiErr.Message)
	assert.False(t, apiErr.Recoverable())
	assert.False(t, IsRecoverable(err))
}

func TestClientRecoverableErrors(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "try later"})
		}))

		client := NewClient(srv.URL, "sk_test_abc", zaptest.NewLogger(t))
		_, err := client.GetTransaction(context.Background(), "12345")
		srv.Close()

		require.Error(t, err)
		assert.True(t, IsRecoverable(err), "status %d should be recoverable", status)
	}
}

func TestClientListTransactionsPagination(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "/transaction", r.URL.Path)
		require.Equal(t, "CUS_42", r.URL.Query().Get("customer"))

		if r.URL.Query().Get("next") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":  true,
				"message": "ok",
				"data": []map[string]any{
					{"id": 1, "status": "success", "reference": "a_1", "amount": 1000},
				},
				"meta": map[string]any{"next": "cursor-2"},
			})
			return
		}
		require.Equal(t, "cursor-2", r.URL.Query().Get("next"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "ok",
			"data": []map[string]any{
				{"id": 2, "status": "success", "reference": "b_2", "amount": 2000},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test_abc", zaptest.NewLogger(t))

	page1, err := client.ListTransactions(context.Background(), "CUS_42", "")
	require.NoError(t, err)
	require.Len(t, page1.Transactions, 1)
	assert.Equal(t, "cursor-2", page1.Next)

	page2, err := client.ListTransactions(context.Background(), "CUS_42", page1.Next)
	require.NoError(t, err)
	require.Len(t, page2.Transactions, 1)
	assert.Empty(t, page2.Next)
	assert.Equal(t, 2, calls)
}

func TestChargeMetadataTolerantDecode(t *testing.T) {
	cases := map[string]string{
		"object":        `{"metadata":{"order_hash":"oh","transaction_hash":"th"}}`,
		"string-object": `{"metadata":"{\"order_hash\":\"oh\",\"transaction_hash\":\"th\"}"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var charge Charge
			require.NoError(t, json.Unmarshal([]byte(payload), &charge))
			assert.Equal(t, "oh", charge.Metadata.OrderHash)
			assert.Equal(t, "th", charge.Metadata.TransactionHash)
		})
	}

	t.Run("empty-array", func(t *testing.T) {
		var charge Charge
		require.NoError(t, json.Unmarshal([]byte(`{"metadata":[]}`), &charge))
		assert.Empty(t, charge.Metadata.TransactionHash)
	})
}
