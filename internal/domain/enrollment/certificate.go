package enrollment

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/skillforge/lms-backend/internal/domain/course"
)

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE ISSUER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCertificatePrefix - префикс идентификатора сертификата по умолчанию.
const DefaultCertificatePrefix = "CERT"

// IssuerConfig задаёт формат идентификатора сертификата.
type IssuerConfig struct {
	// Prefix - первая часть идентификатора, например "CERT".
	Prefix string
	// SecureSuffix добавляет криптографически случайный хвост
	// к формату PREFIX-XXXXYYYY-ZZZZZZZZ.
	SecureSuffix bool
}

// CertificateIssuer выдаёт сертификат один раз, когда выполнены все условия.
type CertificateIssuer struct {
	prefix       string
	secureSuffix bool
	now          func() time.Time
	random       io.Reader
}

// IssuerOption настраивает CertificateIssuer.
type IssuerOption func(*CertificateIssuer)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) IssuerOption {
	return func(ci *CertificateIssuer) {
		ci.now = now
	}
}

// WithRandom подменяет источник случайности для SecureSuffix.
func WithRandom(r io.Reader) IssuerOption {
	return func(ci *CertificateIssuer) {
		ci.random = r
	}
}

// NewCertificateIssuer создаёт issuer.
func NewCertificateIssuer(cfg IssuerConfig, opts ...IssuerOption) *CertificateIssuer {
	prefix := strings.ToUpper(strings.TrimSpace(cfg.Prefix))
	if prefix == "" {
		prefix = DefaultCertificatePrefix
	}
	ci := &CertificateIssuer{
		prefix:       prefix,
		secureSuffix: cfg.SecureSuffix,
		now:          time.Now,
		random:       rand.Reader,
	}
	for _, opt := range opts {
		opt(ci)
	}
	return ci
}

// Eligible проверяет условия выдачи: у курса есть модули, и в каждом модуле
// отмечено прочтение, выполнены все упражнения и активности, сдан квиз.
func (ci *CertificateIssuer) Eligible(c *course.Course, e *Enrollment) bool {
	if len(c.Modules) == 0 {
		return false
	}
	for _, mp := range Breakdown(c, e) {
		if !mp.IsFullyComplete() {
			return false
		}
	}
	return true
}

// MaybeIssue выдаёт сертификат, если он ещё не выдан и условия выполнены.
// Возвращает true только при новой выдаче. Отчисленным сертификат не выдаётся.
func (ci *CertificateIssuer) MaybeIssue(c *course.Course, e *Enrollment) (bool, error) {
	if e.HasCertificate() || e.IsDropped() {
		return false, nil
	}
	if !ci.Eligible(c, e) {
		return false, nil
	}
	at := ci.now().UTC()
	id, err := ci.GenerateID(e.CourseID, e.StudentID, at)
	if err != nil {
		return false, err
	}
	// Оба поля присваиваются вместе, до сохранения их никто не видит.
	e.CertificateID = id
	e.CertificateIssuedAt = &at
	return true, nil
}

// GenerateID строит идентификатор вида PREFIX-XXXXYYYY-ZZZZZZZZ:
// XXXX - хвост id курса, YYYY - хвост id студента,
// ZZZZZZZZ - момент выдачи в миллисекундах в base36.
func (ci *CertificateIssuer) GenerateID(courseID, studentID string, at time.Time) (string, error) {
	stamp := strconv.FormatInt(at.UnixMilli(), 36)
	id := fmt.Sprintf("%s-%s%s-%s",
		ci.prefix,
		tail(courseID, 4),
		tail(studentID, 4),
		tail(stamp, 8),
	)
	if !ci.secureSuffix {
		return id, nil
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(ci.random, buf); err != nil {
		return "", fmt.Errorf("certificate suffix: %w", err)
	}
	return id + "-" + base32.StdEncoding.EncodeToString(buf), nil
}

// tail возвращает последние n букв/цифр в верхнем регистре,
// дополняя нулями слева короткие значения.
func tail(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	clean := b.String()
	if len(clean) >= n {
		return clean[len(clean)-n:]
	}
	return strings.Repeat("0", n-len(clean)) + clean
}
