package pqc

// SecurityLevel tags the NIST category an adapter claims to provide. It
// exists so a second backend can be registered for a contract without
// callers needing to know which concrete algorithm produced a key or
// signature, mirroring the `SecurityLevel` tagging in the Rust adapters
// this module's KEM/DSA contracts are modelled on.
type SecurityLevel int

const (
	LevelUnspecified SecurityLevel = iota
	// MlKem192 is ML-KEM-768, NIST PQC category 3.
	MlKem192
	// MlDsa192 is ML-DSA-65, NIST PQC category 3.
	MlDsa192
)

func (self SecurityLevel) String() string {
	switch self {
	case MlKem192:
		return "ML-KEM-768"
	case MlDsa192:
		return "ML-DSA-65"
	default:
		return "unspecified"
	}
}

const (
	// SharedSecretSize is the fixed length of a KEM shared secret.
	SharedSecretSize = 32

	// AEADKeySize is the fixed AEAD key length.
	AEADKeySize = 32
	// AEADNonceSize is the fixed AEAD nonce length.
	AEADNonceSize = 12
	// AEADTagSize is the fixed AEAD tag length.
	AEADTagSize = 16

	// HashSize is the fixed digest length of the collision-resistant hash.
	HashSize = 32
)
