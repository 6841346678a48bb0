package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/zeth-go/zeth/core/types"
)

// s256 is the secp256k1 curve (see secp256k1_curve.go). Ethereum's signing
// scheme is only ecrecover-compatible over the actual secp256k1 group; the
// standard library ships no secp256k1.
var s256 = S256()

// secp256k1N is the order of the secp256k1 curve, read from the curve
// itself rather than a second hardcoded literal.
var secp256k1N = Secp256k1N()

// secp256k1halfN is half the order, used for Homestead low-S check.
var secp256k1halfN = new(big.Int).Div(secp256k1N, big.NewInt(2))

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(s256, rand.Reader)
}

// randFieldElement returns a uniform random scalar in [1, n-1].
func randFieldElement(n *big.Int) (*big.Int, error) {
	for {
		k, err := rand.Int(rand.Reader, n)
		if err != nil {
			return nil, err
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}

// Sign calculates a recoverable ECDSA signature (65 bytes [R || S || V]).
// V is the raw recovery id (0 or 1), derived from the parity of the
// ephemeral point's Y coordinate; S is normalized to the lower half of the
// curve order per EIP-2, flipping V to match.
func Sign(hash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != 32 {
		return nil, errors.New("hash must be 32 bytes")
	}
	curve := S256().(*secp256k1Curve)
	e := new(big.Int).SetBytes(hash)

	var r, s *big.Int
	var v byte
	for {
		k, err := randFieldElement(curve.n)
		if err != nil {
			return nil, err
		}
		rx, ry := curve.ScalarBaseMult(k.Bytes())
		r = new(big.Int).Mod(rx, curve.n)
		if r.Sign() == 0 {
			continue
		}
		kInv := new(big.Int).ModInverse(k, curve.n)
		s = new(big.Int).Mul(r, prv.D)
		s.Add(s, e)
		s.Mul(s, kInv)
		s.Mod(s, curve.n)
		if s.Sign() == 0 {
			continue
		}
		v = byte(ry.Bit(0))
		break
	}

	if s.Cmp(secp256k1halfN) > 0 {
		s = new(big.Int).Sub(curve.n, s)
		v ^= 1
	}

	sig := make([]byte, 65)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = v
	return sig, nil
}

// Ecrecover recovers the uncompressed public key from hash and signature.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	pub, err := SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	return FromECDSAPub(pub), nil
}

// SigToPub recovers the public key from a 32-byte hash and a 65-byte
// [R || S || V] signature using the curve's recoverPublicKey.
func SigToPub(hash, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != 65 {
		return nil, errors.New("signature must be 65 bytes [R || S || V]")
	}
	if len(hash) != 32 {
		return nil, errors.New("hash must be 32 bytes")
	}
	v := sig[64]
	if v > 1 {
		return nil, errors.New("invalid recovery id")
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil, errInvalidSignature
	}
	x, y, err := recoverPublicKey(hash, r, s, v)
	if err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{Curve: s256, X: x, Y: y}, nil
}

// ValidateSignature verifies that the given signature (64 bytes, no V) is valid
// for the provided 65-byte uncompressed public key and 32-byte hash.
func ValidateSignature(pubkey, hash, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	if len(hash) != 32 {
		return false
	}
	if len(pubkey) != 65 || pubkey[0] != 0x04 {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	x := new(big.Int).SetBytes(pubkey[1:33])
	y := new(big.Int).SetBytes(pubkey[33:65])
	pub := &ecdsa.PublicKey{Curve: s256, X: x, Y: y}
	return ecdsa.Verify(pub, hash, r, s)
}

// ValidateSignatureValues checks r, s, v for validity per Homestead rules.
// If homestead is true, s must be in the lower half of the curve order.
func ValidateSignatureValues(v byte, r, s *big.Int, homestead bool) bool {
	if r == nil || s == nil {
		return false
	}
	if v > 1 {
		return false
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if homestead && s.Cmp(secp256k1halfN) > 0 {
		return false
	}
	return true
}

// PubkeyToAddress derives the Ethereum address from a public key.
// Address = Keccak256(pubkey[1:])[12:]
func PubkeyToAddress(p ecdsa.PublicKey) types.Address {
	pubBytes := FromECDSAPub(&p)
	if pubBytes == nil {
		return types.Address{}
	}
	hash := Keccak256(pubBytes[1:])
	return types.BytesToAddress(hash[12:])
}

// CompressPubkey compresses a 65-byte uncompressed public key to 33 bytes.
func CompressPubkey(pubkey *ecdsa.PublicKey) []byte {
	if pubkey == nil || pubkey.X == nil || pubkey.Y == nil {
		return nil
	}
	return elliptic.MarshalCompressed(s256, pubkey.X, pubkey.Y)
}

// DecompressPubkey decompresses a 33-byte compressed public key. Computed
// by hand rather than via elliptic.UnmarshalCompressed: that stdlib helper
// assumes a short-Weierstrass curve with a = -3, which holds for the NIST
// curves but not for secp256k1 (a = 0), so it would recover the wrong y.
func DecompressPubkey(pubkey []byte) (*ecdsa.PublicKey, error) {
	if len(pubkey) != 33 {
		return nil, errors.New("invalid compressed public key length")
	}
	if pubkey[0] != 2 && pubkey[0] != 3 {
		return nil, errors.New("invalid compressed public key prefix")
	}
	curve := S256().(*secp256k1Curve)
	x := new(big.Int).SetBytes(pubkey[1:])
	if x.Cmp(curve.p) >= 0 {
		return nil, errors.New("invalid compressed public key: x out of range")
	}
	y := computeY(x, curve.p)
	if y == nil {
		return nil, errors.New("invalid compressed public key: not on curve")
	}
	if byte(y.Bit(0)) != pubkey[0]&1 {
		y = new(big.Int).Sub(curve.p, y)
	}
	if !curve.IsOnCurve(x, y) {
		return nil, errors.New("invalid compressed public key: not on curve")
	}
	return &ecdsa.PublicKey{Curve: s256, X: x, Y: y}, nil
}

// FromECDSAPub marshals a public key to 65-byte uncompressed format.
func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(pub.Curve, pub.X, pub.Y)
}
