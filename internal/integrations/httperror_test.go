package integrations

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCheckResponse(t *testing.T) {
	ok := &http.Response{StatusCode: 201, Body: io.NopCloser(strings.NewReader(""))}
	require.NoError(t, CheckResponse("dhl", ok))

	bad := &http.Response{StatusCode: 422, Body: io.NopCloser(strings.NewReader(`{"detail":"bad postcode"}`))}
	err := CheckResponse("dhl", bad)
	var httpErr *HTTPError
	require.True(t, errors.As(errors.Wrap(err, "create shipment"), &httpErr))
	require.Equal(t, 422, httpErr.StatusCode)
	require.Contains(t, err.Error(), "bad postcode")
}
