package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/hoangvu/cinema-booking/internal/utils"
)

const testSecret = "unit-test-secret"

func invoke(mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, interface{}) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/", nil)
    if authHeader != "" {
        req.Header.Set("Authorization", authHeader)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    var captured interface{}
    handler := mw(func(c echo.Context) error {
        captured = c.Get("user_id")
        return c.NoContent(http.StatusOK)
    })
    _ = handler(c)
    return rec, captured
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
    tok, err := utils.NewAccessToken(testSecret, 42, 5)
    require.NoError(t, err)

    rec, uid := invoke(JWTAuth(testSecret), "Bearer "+tok.Token)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, uint64(42), uid)
}

func TestJWTAuthRejectsMissingAndForgedTokens(t *testing.T) {
    rec, _ := invoke(JWTAuth(testSecret), "")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)

    forged, err := utils.NewAccessToken("other-secret", 42, 5)
    require.NoError(t, err)
    rec, uid := invoke(JWTAuth(testSecret), "Bearer "+forged.Token)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Nil(t, uid)
}

func TestOptionalAuthPassesAnonymous(t *testing.T) {
    rec, uid := invoke(OptionalAuth(testSecret), "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Nil(t, uid)
}

func TestOptionalAuthStillRejectsBadTokens(t *testing.T) {
    rec, _ := invoke(OptionalAuth(testSecret), "Bearer garbage")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuthAttachesIdentity(t *testing.T) {
    tok, err := utils.NewAccessToken(testSecret, 7, 5)
    require.NoError(t, err)
    rec, uid := invoke(OptionalAuth(testSecret), "Bearer "+tok.Token)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, uint64(7), uid)
}
