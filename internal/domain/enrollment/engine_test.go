package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_QuizScenario(t *testing.T) {
	c := singleQuizCourse()
	e := newTestEnrollment(t)
	en := NewEngine(fixedIssuer())

	e.MarkModule("m1", true, t0)
	ev, err := en.Evaluate(c, e, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, ev.Percentage)
	assert.Equal(t, StatusActive, ev.Status)
	assert.False(t, ev.CertificateIssued)

	m := &c.Modules[0]
	g, err := GradeQuiz(m, scoredAnswers(m, 2))
	require.NoError(t, err)
	e.ApplyGrade(m.ID, g, t0)

	ev, err = en.Evaluate(c, e, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, ev.PreviousPercentage)
	assert.Equal(t, 100, ev.Percentage)
	assert.Equal(t, StatusCompleted, ev.Status)
	assert.True(t, ev.StatusChanged())
	assert.True(t, ev.CertificateIssued)
	assert.NotEmpty(t, e.CertificateID)
}

func TestEngine_RevertKeepsCertificate(t *testing.T) {
	c := mixedCourse()
	e := newTestEnrollment(t)
	en := NewEngine(fixedIssuer())
	completeAll(t, c, e)

	_, err := en.Evaluate(c, e, nil)
	require.NoError(t, err)
	id := e.CertificateID

	e.MarkModule("m2", false, t0)
	ev, err := en.Evaluate(c, e, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, ev.Status)
	assert.Less(t, ev.Percentage, 100)
	assert.False(t, ev.CertificateIssued)
	assert.Equal(t, id, e.CertificateID)
}

func TestEngine_OverrideThenReevaluate(t *testing.T) {
	c := mixedCourse()
	e := newTestEnrollment(t)
	en := NewEngine(fixedIssuer())

	require.NoError(t, e.OverridePercentage(100, t0))
	ev, err := en.Evaluate(c, e, Fallback(e.CompletionPercentage))
	require.NoError(t, err)
	assert.Equal(t, 100, ev.PreviousPercentage)
	assert.Equal(t, 0, ev.Percentage)
	assert.False(t, ev.CertificateIssued)
	assert.False(t, e.HasCertificate())
}

func TestEngine_DroppedIsSticky(t *testing.T) {
	c := mixedCourse()
	e := newTestEnrollment(t)
	en := NewEngine(fixedIssuer())
	_, err := e.SetAdministrativeStatus(StatusDropped, t0)
	require.NoError(t, err)
	completeAll(t, c, e)

	ev, err := en.Evaluate(c, e, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, ev.Percentage)
	assert.Equal(t, StatusDropped, ev.Status)
	assert.False(t, ev.CertificateIssued)

	changed, err := e.SetAdministrativeStatus(StatusActive, t0)
	require.NoError(t, err)
	require.True(t, changed)
	ev, err = en.Evaluate(c, e, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ev.Status)
	assert.True(t, ev.CertificateIssued)
}

func TestEngine_EmptyCourseUsesFallback(t *testing.T) {
	c := singleQuizCourse()
	c.Modules = nil
	e := newTestEnrollment(t)
	en := NewEngine(nil)

	require.NoError(t, e.OverridePercentage(100, t0))
	ev, err := en.Evaluate(c, e, Fallback(e.CompletionPercentage))
	require.NoError(t, err)
	assert.Equal(t, 100, ev.Percentage)
	assert.Equal(t, StatusCompleted, ev.Status)
	assert.False(t, ev.CertificateIssued)
	assert.False(t, ev.PercentageChanged())
}
