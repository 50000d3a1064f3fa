package service

import (
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
)

// codeBytes is the truncated digest length; 10 bytes encode to 16 base32 chars.
const codeBytes = 10

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CertificateVerifier derives verification codes for issued certificates with
// a keyed BLAKE2b-256 over "certificateId|studentId|courseId|issuedAtUnix".
type CertificateVerifier struct {
	key []byte
}

// Compile-time check that CertificateVerifier implements enrollment.CodeSigner.
var _ enrollment.CodeSigner = (*CertificateVerifier)(nil)

// NewCertificateVerifier creates a verifier. The key must not exceed 64 bytes.
func NewCertificateVerifier(key string) (*CertificateVerifier, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("certificate verifier: key longer than %d bytes", blake2b.Size)
	}
	return &CertificateVerifier{key: []byte(key)}, nil
}

// Code returns the verification code, or "" when no certificate is issued.
func (v *CertificateVerifier) Code(e *enrollment.Enrollment) string {
	if e == nil || !e.HasCertificate() {
		return ""
	}

	h, err := blake2b.New256(v.key)
	if err != nil {
		// Key length is checked in the constructor.
		panic(err)
	}

	payload := strings.Join([]string{
		e.CertificateID,
		e.StudentID,
		e.CourseID,
		strconv.FormatInt(e.CertificateIssuedAt.Unix(), 10),
	}, "|")
	h.Write([]byte(payload))

	return codeEncoding.EncodeToString(h.Sum(nil)[:codeBytes])
}

// Verify compares a presented code in constant time. Case is ignored.
func (v *CertificateVerifier) Verify(e *enrollment.Enrollment, code string) bool {
	want := v.Code(e)
	if want == "" {
		return false
	}
	got := strings.ToUpper(strings.TrimSpace(code))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
