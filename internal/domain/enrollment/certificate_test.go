package enrollment

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var certIDPattern = regexp.MustCompile(`^CERT-[0-9A-Z]{8}-[0-9A-Z]{8}$`)

func fixedIssuer(opts ...IssuerOption) *CertificateIssuer {
	opts = append([]IssuerOption{WithClock(func() time.Time { return t0 })}, opts...)
	return NewCertificateIssuer(IssuerConfig{}, opts...)
}

func TestGenerateID_Format(t *testing.T) {
	ci := fixedIssuer()

	id, err := ci.GenerateID("64ffeeddccbbaa0099887766", "64a1b2c3d4e5f60718293a4b", t0)
	require.NoError(t, err)
	assert.Regexp(t, certIDPattern, id)
	assert.Equal(t, "CERT-77663A4B", id[:13])

	short, err := ci.GenerateID("c1", "s", t0)
	require.NoError(t, err)
	assert.Equal(t, "CERT-00C1000S", short[:13])
}

func TestGenerateID_SecureSuffix(t *testing.T) {
	ci := NewCertificateIssuer(IssuerConfig{Prefix: "lms", SecureSuffix: true},
		WithRandom(bytes.NewReader([]byte{1, 2, 3, 4, 5})))

	id, err := ci.GenerateID("course", "student", t0)
	require.NoError(t, err)
	assert.Regexp(t, `^LMS-[0-9A-Z]{8}-[0-9A-Z]{8}-[A-Z2-7]{8}$`, id)

	broken := NewCertificateIssuer(IssuerConfig{SecureSuffix: true}, WithRandom(bytes.NewReader(nil)))
	_, err = broken.GenerateID("course", "student", t0)
	assert.Error(t, err)
}

func TestMaybeIssue_FullCompletion(t *testing.T) {
	c := singleQuizCourse()
	e := newTestEnrollment(t)
	ci := fixedIssuer()

	e.MarkModule("m1", true, t0)
	issued, err := ci.MaybeIssue(c, e)
	require.NoError(t, err)
	assert.False(t, issued)
	assert.False(t, e.HasCertificate())

	completeAll(t, c, e)
	issued, err = ci.MaybeIssue(c, e)
	require.NoError(t, err)
	assert.True(t, issued)
	require.NotNil(t, e.CertificateIssuedAt)
	assert.Equal(t, t0, *e.CertificateIssuedAt)
	assert.Regexp(t, certIDPattern, e.CertificateID)
}

func TestMaybeIssue_Idempotent(t *testing.T) {
	c := mixedCourse()
	e := newTestEnrollment(t)
	completeAll(t, c, e)

	first, err := fixedIssuer().MaybeIssue(c, e)
	require.NoError(t, err)
	require.True(t, first)
	id, at := e.CertificateID, *e.CertificateIssuedAt

	later := NewCertificateIssuer(IssuerConfig{}, WithClock(func() time.Time { return t0.Add(time.Hour) }))
	second, err := later.MaybeIssue(c, e)
	require.NoError(t, err)
	assert.False(t, second)
	assert.Equal(t, id, e.CertificateID)
	assert.Equal(t, at, *e.CertificateIssuedAt)
}

func TestMaybeIssue_RequiresEveryItem(t *testing.T) {
	c := mixedCourse()
	e := newTestEnrollment(t)
	completeAll(t, c, e)
	_, err := e.SetPracticeItem(ItemActivity, "m1", 0, false, t0)
	require.NoError(t, err)

	issued, err := fixedIssuer().MaybeIssue(c, e)
	require.NoError(t, err)
	assert.False(t, issued)
}

func TestMaybeIssue_SkipsDroppedAndEmpty(t *testing.T) {
	c := mixedCourse()
	e := newTestEnrollment(t)
	completeAll(t, c, e)
	_, err := e.SetAdministrativeStatus(StatusDropped, t0)
	require.NoError(t, err)

	issued, err := fixedIssuer().MaybeIssue(c, e)
	require.NoError(t, err)
	assert.False(t, issued)

	empty := singleQuizCourse()
	empty.Modules = nil
	fresh := newTestEnrollment(t)
	issued, err = fixedIssuer().MaybeIssue(empty, fresh)
	require.NoError(t, err)
	assert.False(t, issued)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestMaybeIssue_GeneratorErrorLeavesFieldsUnset(t *testing.T) {
	c := singleQuizCourse()
	e := newTestEnrollment(t)
	completeAll(t, c, e)

	ci := NewCertificateIssuer(IssuerConfig{SecureSuffix: true}, WithRandom(failingReader{}))
	issued, err := ci.MaybeIssue(c, e)
	require.Error(t, err)
	assert.False(t, issued)
	assert.Empty(t, e.CertificateID)
	assert.Nil(t, e.CertificateIssuedAt)
}
