package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func memberClaims(exp time.Time) AccessClaims {
	return AccessClaims{Username: "alice", Role: DefaultRole, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "m-1",
		ExpiresAt: gjwt.NewNumericDate(exp),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
}

func TestMintVerifyRoundTripHS256(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: 15 * time.Minute, PrivateKey: testSecret, Issuer: "albumauth"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, exp, err := m.Mint("m-1", "alice")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if d := time.Until(exp); d <= 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("unexpected expiry distance %s", d)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.MemberID() != "m-1" || claims.Username != "alice" || claims.Role != DefaultRole {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" || claims.Issuer != "albumauth" {
		t.Fatalf("missing jti or issuer: %+v", claims.RegisteredClaims)
	}

	other, _, err := m.Mint("m-1", "alice")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	otherClaims, err := m.Verify(other)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if otherClaims.ID == claims.ID {
		t.Fatal("each access token must carry a distinct jti")
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Minute, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: 0, PrivateKey: testSecret}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, PrivateKey: testSecret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.Mint("m-1", "alice")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := m.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, memberClaims(time.Now().Add(time.Minute)))
	token, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestVerifyIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "albumauth",
		Audience:      "album",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, _, err := m.Mint("m-1", "alice")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Verify(access); err != nil {
		t.Fatalf("expected valid token to verify: %v", err)
	}

	sign := func(iss, aud string, exp, iat time.Time) string {
		c := memberClaims(exp)
		c.Issuer = iss
		c.Audience = gjwt.ClaimStrings{aud}
		c.IssuedAt = gjwt.NewNumericDate(iat)
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	now := time.Now()

	if _, err := m.Verify(sign("other", "album", now.Add(time.Minute), now)); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Verify(sign("albumauth", "other-api", now.Add(time.Minute), now)); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Verify(sign("albumauth", "album", now.Add(-15*time.Second), now.Add(-time.Minute))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	_, err = m.Verify(sign("albumauth", "album", now.Add(-2*time.Minute), now.Add(-3*time.Minute)))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := m.Verify(sign("albumauth", "album", now.Add(time.Hour), now.Add(time.Hour))); err == nil {
		t.Fatal("expected future iat to fail")
	}
}

func TestVerifyUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := memberClaims(time.Now().Add(time.Minute))
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, _, err := m.Mint("m-1", "alice")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := m.Verify(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.Verify(good); err == nil {
		t.Fatal("expected verify failure with mismatched key set")
	}
}

func TestVerifyRequiresSubject(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, PrivateKey: testSecret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	c := memberClaims(time.Now().Add(time.Minute))
	c.Subject = ""
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, c).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
