package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func publishKey(t *testing.T, kid string, key *rsa.PublicKey) jsonWebKey {
	t.Helper()
	return jsonWebKey{
		Kty: "RSA",
		Kid: kid,
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

func TestKeySet_FetchAndCache(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(jwksDocument{Keys: []jsonWebKey{publishKey(t, "k1", &priv.PublicKey)}})
	}))
	defer srv.Close()

	ks := NewKeySet(srv.URL, time.Minute)
	for i := 0; i < 3; i++ {
		key, err := ks.Key("k1")
		if err != nil {
			t.Fatalf("Key: %v", err)
		}
		if key.N.Cmp(priv.PublicKey.N) != 0 {
			t.Fatal("modulus mismatch")
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected one fetch, got %d", hits)
	}

	if _, err := ks.Key("missing"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestKeySet_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewKeySet(srv.URL, time.Minute).Key("k1"); err == nil {
		t.Fatal("expected error on JWKS failure")
	}
}

func TestKeySet_VerifiesRS256Token(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwksDocument{Keys: []jsonWebKey{publishKey(t, "rot-2", &priv.PublicKey)}})
	}))
	defer srv.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token.Header["kid"] = "rot-2"
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := jwt.Parse(signed, NewKeySet(srv.URL, time.Minute).Keyfunc())
	if err != nil || !parsed.Valid {
		t.Fatalf("expected valid token, got %v", err)
	}
}

func TestKeyfunc_NoKid(t *testing.T) {
	_, err := NewKeySet("http://unused", time.Minute).Keyfunc()(&jwt.Token{Header: map[string]interface{}{}})
	if err == nil {
		t.Fatal("expected error without kid")
	}
}

func TestDiscoverJWKSURL(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   srv.URL,
			"jwks_uri": srv.URL + "/keys",
		})
	}))
	defer srv.Close()

	url, err := DiscoverJWKSURL(srv.URL + "/")
	if err != nil {
		t.Fatalf("DiscoverJWKSURL: %v", err)
	}
	if url != srv.URL+"/keys" {
		t.Errorf("unexpected jwks_uri %s", url)
	}
}

func TestDiscoverJWKSURL_MissingURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "x"})
	}))
	defer srv.Close()

	if _, err := DiscoverJWKSURL(srv.URL); err == nil {
		t.Fatal("expected error for missing jwks_uri")
	}
}
