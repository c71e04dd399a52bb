package gateway

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestConfirmationSignatureRoundTrip(t *testing.T) {
    sig := SignConfirmation("topsecret", "ord-1", 2500, "txn-9", StatusPaid)
    assert.True(t, VerifyConfirmation("topsecret", "ord-1", 2500, "txn-9", StatusPaid, sig))

    // Any tampered field breaks verification.
    assert.False(t, VerifyConfirmation("topsecret", "ord-1", 2400, "txn-9", StatusPaid, sig))
    assert.False(t, VerifyConfirmation("topsecret", "ord-2", 2500, "txn-9", StatusPaid, sig))
    assert.False(t, VerifyConfirmation("topsecret", "ord-1", 2500, "txn-9", StatusExpired, sig))
    assert.False(t, VerifyConfirmation("other", "ord-1", 2500, "txn-9", StatusPaid, sig))
}

func TestTerminalFailure(t *testing.T) {
    assert.False(t, StatusPaid.TerminalFailure())
    assert.False(t, StatusPending.TerminalFailure())
    assert.True(t, StatusExpired.TerminalFailure())
    assert.True(t, StatusCanceled.TerminalFailure())
    assert.True(t, StatusFailed.TerminalFailure())
}

func TestCreateCheckoutSignsRequest(t *testing.T) {
    var got map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.Equal(t, http.MethodPost, r.Method)
        require.Equal(t, "/checkouts", r.URL.Path)
        require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
        w.WriteHeader(http.StatusCreated)
        _ = json.NewEncoder(w).Encode(CheckoutResult{ProviderRef: "prov-1", CheckoutURL: "https://pay.example/c/1"})
    }))
    defer srv.Close()

    c := New(Config{BaseURL: srv.URL, MerchantID: "m-1", Secret: "topsecret", ReturnURL: "https://shop/return", CancelURL: "https://shop/cancel"})
    res, err := c.CreateCheckout(context.Background(), CheckoutRequest{OrderRef: "ord-1", AmountCents: 2500})
    require.NoError(t, err)
    assert.Equal(t, "prov-1", res.ProviderRef)
    assert.Equal(t, "https://pay.example/c/1", res.CheckoutURL)

    assert.Equal(t, "m-1", got["merchant_id"])
    assert.Equal(t, "ord-1", got["order_ref"])
    assert.Equal(t, Sign("topsecret", "ord-1", 2500), got["signature"])
}

func TestCreateCheckoutRejectsIncompleteResponse(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _ = json.NewEncoder(w).Encode(CheckoutResult{ProviderRef: "prov-1"})
    }))
    defer srv.Close()

    c := New(Config{BaseURL: srv.URL, Secret: "s"})
    _, err := c.CreateCheckout(context.Background(), CheckoutRequest{OrderRef: "ord-1", AmountCents: 100})
    require.Error(t, err)
}

func TestGetStatusMapsUnknownToFailed(t *testing.T) {
    statuses := []string{"PAID", "PENDING", "EXPIRED", "SOMETHING_NEW"}
    want := []Status{StatusPaid, StatusPending, StatusExpired, StatusFailed}
    i := 0
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _ = json.NewEncoder(w).Encode(map[string]string{"status": statuses[i]})
    }))
    defer srv.Close()

    c := New(Config{BaseURL: srv.URL, MerchantID: "m-1", Secret: "s"})
    for ; i < len(statuses); i++ {
        got, err := c.GetStatus(context.Background(), "prov-1")
        require.NoError(t, err)
        assert.Equal(t, want[i], got)
    }
}

func TestQRPNGBase64(t *testing.T) {
    qr, err := QRPNGBase64("https://pay.example/c/1")
    require.NoError(t, err)
    assert.NotEmpty(t, qr)
}
