package transport

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOAuth1Signer_ReferenceVector(t *testing.T) {
	signer := NewOAuth1Signer("dpf43f3p2l4k3l03", "kd94hf93k423kf44")
	signer.now = func() time.Time { return time.Unix(1191242096, 0) }
	signer.nonce = func() string { return "kllo9940pd9333jh" }

	signed, err := signer.SignURL("GET", "http://photos.example.net/photos?file=vacation.jpg&size=original", "nnch734d00sl2jdk", "pfkkdhi9sl3r4s00")
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "tR3+Ty81lMeYAr/Fid0kMTYa/WM=", q.Get("oauth_signature"))
	require.Equal(t, "vacation.jpg", q.Get("file"))
	require.Equal(t, "original", q.Get("size"))
	require.Equal(t, "nnch734d00sl2jdk", q.Get("oauth_token"))
	require.Equal(t, "HMAC-SHA1", q.Get("oauth_signature_method"))
	require.Equal(t, "http://photos.example.net/photos", u.Scheme+"://"+u.Host+u.Path)
}

func TestPercentEncode(t *testing.T) {
	require.Equal(t, "abc-._~123", percentEncode("abc-._~123"))
	require.Equal(t, "a%20b%2Bc%2A%2F%3D", percentEncode("a b+c*/="))
	require.Equal(t, "%C3%A9", percentEncode("é"))
}

func TestNormalizeParams_SortsByNameThenValue(t *testing.T) {
	params := url.Values{"a2": {"x"}, "a": {"z", "y"}, "b": {"1 2"}}
	require.Equal(t, "a=y&a=z&a2=x&b=1%202", normalizeParams(params))
}

func TestBaseURI(t *testing.T) {
	u, err := url.Parse("HTTPS://Api.Example.com:443/v2/measure?action=x")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v2/measure", baseURI(u))

	u, err = url.Parse("http://example.com:8080")
	require.NoError(t, err)
	require.Equal(t, "http://example.com:8080/", baseURI(u))
}
