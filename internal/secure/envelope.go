package secure

// Envelope encrypts values under tenant-derived keys.
type Envelope struct {
	deriver *Deriver
}

// NewEnvelope creates an Envelope backed by deriver.
func NewEnvelope(deriver *Deriver) *Envelope {
	return &Envelope{deriver: deriver}
}

// Seal encrypts plaintext for tenantID.
func (e *Envelope) Seal(tenantID string, plaintext []byte) (string, error) {
	key, err := e.deriver.TenantKey(tenantID)
	if err != nil {
		return "", err
	}
	defer key.Destroy()

	return Encrypt(key.Bytes(), plaintext)
}

// Open decrypts blob for tenantID. A blob sealed for another tenant fails
// with a CryptoError or yields bytes unrelated to the original plaintext.
func (e *Envelope) Open(tenantID, blob string) ([]byte, error) {
	key, err := e.deriver.TenantKey(tenantID)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return Decrypt(key.Bytes(), blob)
}
