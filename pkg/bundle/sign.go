package bundle

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// SignatureName is the archive entry holding the RSA-PSS signature over the
// manifest bytes. It is present only in signed bundles.
const SignatureName = "manifest.sig"

// DefaultKeyBits is the RSA key size GenerateKeyPair callers should use.
const DefaultKeyBits = 4096

var (
	ErrUnsigned         = errors.New("bundle is not signed")
	ErrInvalidSignature = errors.New("bundle signature is invalid")
)

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}

// GenerateKeyPair returns a new PEM-encoded RSA private key (PKCS#1) and its
// public key (PKIX).
func GenerateKeyPair(bits int) (privPEM, pubPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating RSA key")
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshalling public key")
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return privPEM, pubPEM, nil
}

// LoadPrivateKey reads a PEM RSA private key in PKCS#8 or PKCS#1 form.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.Errorf("key in %s is not an RSA private key", path)
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Errorf("failed to parse private key from %s", path)
	}
	return key, nil
}

// LoadPublicKey reads a PEM PKIX RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse public key from %s", path)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("key from %s is not an RSA public key", path)
	}
	return rsaPub, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.Errorf("failed to decode PEM block from %s", path)
	}
	return block, nil
}

func sign(data []byte, key *rsa.PrivateKey) ([]byte, error) {
	hashed := sha256.Sum256(data)
	return rsa.SignPSS(rand.Reader, key, crypto.SHA256, hashed[:], pssOptions)
}

// VerifySignature checks the signature stored next to the manifest in an
// extracted bundle at dir.
func VerifySignature(dir string, pub *rsa.PublicKey) error {
	sig, err := os.ReadFile(filepath.Join(dir, SignatureName))
	if os.IsNotExist(err) {
		return ErrUnsigned
	}
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return err
	}
	hashed := sha256.Sum256(data)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, pssOptions); err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return nil
}
