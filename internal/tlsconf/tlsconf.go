// Package tlsconf derives the TLS identity of the agentbridge TCP listener
// from the shared token, so a remote CLI needs nothing but the token to both
// encrypt and authenticate the server.
//
// The private key is HKDF-SHA256(ikm=token, salt="agentbridge-tls-v1",
// info="listener-key") reduced onto P-256. The certificate around it is
// throwaway; clients pin the public key, not the certificate.
package tlsconf

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"golang.org/x/crypto/hkdf"
	"google.golang.org/grpc/credentials"
)

// DefaultToken keys the listener when no --token is configured. Traffic is
// still encrypted, but anyone with the binary can talk to it.
const DefaultToken = "agentbridge"

const serverName = "agentbridge"

// ErrKeyMismatch is returned by the client verifier when the server's key was
// not derived from the same token.
var ErrKeyMismatch = errors.New("server public key does not match token")

// Identity is the derived key and everything built from it.
type Identity struct {
	key    *ecdsa.PrivateKey
	pubDER []byte
}

// Derive returns the identity for token (DefaultToken when empty).
func Derive(token string) (*Identity, error) {
	if token == "" {
		token = DefaultToken
	}
	key, err := deriveKey(token)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: derive key: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: marshal public key: %w", err)
	}
	return &Identity{key: key, pubDER: pub}, nil
}

// Fingerprint is the hex SHA-256 of the public key, short enough to compare
// by eye in logs.
func (id *Identity) Fingerprint() string {
	sum := sha256.Sum256(id.pubDER)
	return hex.EncodeToString(sum[:8])
}

// ServerConfig returns the listener's TLS config. ALPN offers h2 for gRPC and
// http/1.1 for the status endpoint.
func (id *Identity) ServerConfig() (*tls.Config, error) {
	der, err := selfSigned(id.key)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  id.key,
		}},
		NextProtos: []string{"h2", "http/1.1"},
		MinVersion: tls.VersionTLS13,
	}, nil
}

// ClientConfig returns a TLS config that accepts exactly this identity.
func (id *Identity) ClientConfig() *tls.Config {
	return &tls.Config{
		// Chain verification is replaced by the key pin below.
		InsecureSkipVerify:    true, //nolint:gosec
		ServerName:            serverName,
		MinVersion:            tls.VersionTLS13,
		VerifyPeerCertificate: id.verifyPeer,
	}
}

// ClientCredentials wraps ClientConfig for gRPC.
func (id *Identity) ClientCredentials() credentials.TransportCredentials {
	return credentials.NewTLS(id.ClientConfig())
}

func (id *Identity) verifyPeer(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return errors.New("tlsconf: server presented no certificate")
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("tlsconf: parse server certificate: %w", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return fmt.Errorf("tlsconf: marshal server key: %w", err)
	}
	if subtle.ConstantTimeCompare(pub, id.pubDER) != 1 {
		return ErrKeyMismatch
	}
	return nil
}

func deriveKey(token string) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, []byte(token), []byte("agentbridge-tls-v1"), []byte("listener-key"))
	buf := make([]byte, 48)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	curve := elliptic.P256()
	// d = 1 + (buf mod (N-1)) keeps the scalar in [1, N-1].
	nMinus1 := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d := new(big.Int).SetBytes(buf)
	d.Mod(d, nMinus1).Add(d, big.NewInt(1))

	key := &ecdsa.PrivateKey{D: d}
	key.Curve = curve
	key.X, key.Y = curve.ScalarBaseMult(d.FillBytes(make([]byte, 32)))
	return key, nil
}

func selfSigned(key *ecdsa.PrivateKey) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: serverName},
		DNSNames:              []string{serverName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	return x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
}
