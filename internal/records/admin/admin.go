// Package admin implements the administrative-metadata seal: side-channel
// JSON carried inside records as a signed JWT wrapped in a JWE, stored under
// the reserved supplemental-information key.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/antarctica/lantern/internal/records"
)

const (
	// Issuer and Audience are fixed claims every seal carries.
	Issuer   = "magic.data.bas.ac.uk"
	Audience = "data.bas.ac.uk"

	// payloadClaim holds the administrative JSON inside the JWT.
	payloadClaim = "pyd"

	// Lifetime is deliberately indefinite; seals are invalidated by
	// re-encoding, not expiry.
	Lifetime = 100 * 365 * 24 * time.Hour
)

// ErrIntegrity reports a seal that failed signature or claim verification.
var ErrIntegrity = errors.New("administrative metadata integrity failure")

// ErrSubjectMismatch reports a seal whose subject disagrees with the record
// it is attached to.
var ErrSubjectMismatch = errors.New("administrative metadata subject mismatch")

// Permission grants a group access to metadata or resources.
type Permission struct {
	Directory string `json:"directory"`
	Group     string `json:"group"`
	Expiry    *time.Time `json:"expiry,omitempty"`
	Comments  string `json:"comments,omitempty"`
}

// Administration is the side-channel payload embedded in a record.
type Administration struct {
	// ID is the file identifier of the record this payload belongs to.
	ID                  string       `json:"id"`
	GitLabIssues        []string     `json:"gitlab_issues,omitempty"`
	AccessPermissions   []Permission `json:"access_permissions,omitempty"`
	MetadataPermissions []Permission `json:"metadata_permissions,omitempty"`
	ResourcePermissions []Permission `json:"resource_permissions,omitempty"`
}

// Public reports whether the payload grants anonymous access: no access
// permissions means the resource is open.
func (a *Administration) Public() bool {
	return len(a.AccessPermissions) == 0
}

// Keys carries the JWKs needed by the seal. Encoding needs SigningPrivate and
// EncryptionPublic; decoding needs EncryptionPrivate and SigningPublic.
type Keys struct {
	SigningPrivate    jwk.Key
	SigningPublic     jwk.Key
	EncryptionPrivate jwk.Key
	EncryptionPublic  jwk.Key
}

// ParseKey parses a JWK JSON document.
func ParseKey(data string) (jwk.Key, error) {
	key, err := jwk.ParseKey([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("parse JWK: %w", err)
	}
	return key, nil
}

// Encode seals an Administration payload: ES256-signed JWT, encrypted to the
// encryption public key with ECDH-ES+A128KW and A256GCM content encryption.
func Encode(keys Keys, administration *Administration) (string, error) {
	if keys.SigningPrivate == nil || keys.EncryptionPublic == nil {
		return "", errors.New("encoding requires the signing private and encryption public keys")
	}

	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer(Issuer).
		Audience([]string{Audience}).
		Subject(administration.ID).
		IssuedAt(now).
		Expiration(now.Add(Lifetime)).
		Claim(payloadClaim, administration).
		Build()
	if err != nil {
		return "", fmt.Errorf("build admin token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, keys.SigningPrivate))
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}

	encrypted, err := jwe.Encrypt(signed,
		jwe.WithKey(jwa.ECDH_ES_A128KW, keys.EncryptionPublic),
		jwe.WithContentEncryption(jwa.A256GCM),
	)
	if err != nil {
		return "", fmt.Errorf("encrypt admin token: %w", err)
	}

	return string(encrypted), nil
}

// Decode opens a sealed token and returns its payload. Signature, issuer and
// audience failures return ErrIntegrity.
func Decode(keys Keys, token string) (*Administration, error) {
	if keys.EncryptionPrivate == nil || keys.SigningPublic == nil {
		return nil, errors.New("decoding requires the encryption private and signing public keys")
	}

	signed, err := jwe.Decrypt([]byte(token), jwe.WithKey(jwa.ECDH_ES_A128KW, keys.EncryptionPrivate))
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %v", ErrIntegrity, err)
	}

	parsed, err := jwt.Parse(signed,
		jwt.WithKey(jwa.ES256, keys.SigningPublic),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: verify: %v", ErrIntegrity, err)
	}

	raw, ok := parsed.Get(payloadClaim)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s claim", ErrIntegrity, payloadClaim)
	}

	administration, err := reclaim(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	if administration.ID != parsed.Subject() {
		return nil, fmt.Errorf("%w: payload id %q does not match token subject %q", ErrSubjectMismatch, administration.ID, parsed.Subject())
	}

	return administration, nil
}

// Load decodes the sealed token carried by a record, if any. Returns nil
// without error when the record carries no administrative metadata. A decoded
// payload whose id disagrees with the record is an ErrSubjectMismatch.
func Load(keys Keys, record *records.Record) (*Administration, error) {
	info, err := record.SupplementalInfo()
	if err != nil {
		return nil, err
	}
	token, ok := info[records.AdminMetadataKey].(string)
	if !ok || token == "" {
		return nil, nil
	}

	administration, err := Decode(keys, token)
	if err != nil {
		return nil, err
	}
	if administration.ID != record.FileIdentifier {
		return nil, fmt.Errorf("%w: admin id %q, record %q", ErrSubjectMismatch, administration.ID, record.FileIdentifier)
	}
	return administration, nil
}

// Set seals administration and merges it into the record's supplemental
// information, preserving other keys. The payload id must match the record.
func Set(keys Keys, record *records.Record, administration *Administration) error {
	if administration.ID != record.FileIdentifier {
		return fmt.Errorf("%w: admin id %q, record %q", ErrSubjectMismatch, administration.ID, record.FileIdentifier)
	}

	token, err := Encode(keys, administration)
	if err != nil {
		return err
	}

	info, err := record.SupplementalInfo()
	if err != nil {
		return err
	}
	info[records.AdminMetadataKey] = token
	return record.SetSupplementalInfo(info)
}

// Strip removes the sealed token from a record's supplemental information.
// If it was the last key, supplemental information is set back to null.
func Strip(record *records.Record) error {
	info, err := record.SupplementalInfo()
	if err != nil {
		return err
	}
	delete(info, records.AdminMetadataKey)
	return record.SetSupplementalInfo(info)
}

// reclaim converts the decoded pyd claim (a generic JSON value) back into a
// typed Administration.
func reclaim(raw any) (*Administration, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var administration Administration
	if err := json.Unmarshal(data, &administration); err != nil {
		return nil, err
	}
	return &administration, nil
}
