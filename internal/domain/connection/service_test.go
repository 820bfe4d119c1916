package connection_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink/internal/domain/connection"
	"github.com/carelink/carelink/internal/domain/connection/connectiontest"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/directory/directorytest"
	"github.com/carelink/carelink/internal/domain/link"
	"github.com/carelink/carelink/internal/domain/link/linktest"
	"github.com/carelink/carelink/internal/platform/apperr"
	"github.com/carelink/carelink/internal/platform/clock"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/notification"
)

type fixture struct {
	svc      *connection.Service
	repo     *connectiontest.Repo
	links    *link.Service
	notifier *notification.MockNotifier

	patient   *directory.User
	caregiver *directory.User
	family    *directory.User
}

func newFixture() *fixture {
	dir := directorytest.NewRepo()
	f := &fixture{
		repo:     connectiontest.NewRepo(),
		notifier: &notification.MockNotifier{},
	}
	f.patient, _ = dir.AddPatient("Ada", "Lovelace", nil, "")
	f.caregiver = dir.AddUser("caregiver", "Grace", "Hopper")
	f.family = dir.AddUser("family_member", "Alan", "Turing")

	dirSvc := directory.NewService(dir)
	clk := clock.NewFixed(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f.links = link.NewService(linktest.NewRepo(), dirSvc, nil, zerolog.Nop())
	f.links.SetClock(clk)

	f.svc = connection.NewService(f.repo, dirSvc, f.links, nil, "https://app.example.com/", zerolog.Nop())
	f.svc.SetClock(clk)
	f.svc.SetNotifier(f.notifier)
	return f
}

func (f *fixture) request(t *testing.T) *connection.Request {
	t.Helper()
	rel := "nurse"
	r, err := f.svc.CreateRequest(context.Background(), f.caregiver.ID, connection.CreateInput{
		PatientEmail:     f.patient.Email,
		RelationshipType: &rel,
	})
	require.NoError(t, err)
	return r
}

func TestCreateRequest_SendsRespondLinks(t *testing.T) {
	f := newFixture()
	r := f.request(t)

	assert.Equal(t, connection.StatusPending, r.Status)
	assert.Len(t, r.Token, 64)
	assert.Equal(t, f.patient.ID, r.PatientUserID)

	calls := f.notifier.CallsFor(f.patient.ID)
	require.Len(t, calls, 1)
	assert.Equal(t, notification.TemplateConnectionRequested, calls[0].TemplateID)
	assert.Equal(t, "Grace Hopper", calls[0].Data["caregiver_name"])
	assert.Equal(t, "nurse", calls[0].Data["relationship"])

	accept, err := url.Parse(calls[0].Data["accept_url"])
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", accept.Host)
	assert.Equal(t, "/api/v1/connection-requests/respond", accept.Path)
	assert.Equal(t, r.Token, accept.Query().Get("token"))
	assert.Equal(t, "accept", accept.Query().Get("action"))
	assert.True(t, strings.Contains(calls[0].Data["reject_url"], "action=reject"))
}

func TestCreateRequest_RespondLinksCarryTenant(t *testing.T) {
	f := newFixture()
	ctx := context.WithValue(context.Background(), db.TenantIDKey, "acme")
	_, err := f.svc.CreateRequest(ctx, f.caregiver.ID, connection.CreateInput{PatientEmail: f.patient.Email})
	require.NoError(t, err)

	data := f.notifier.CallsFor(f.patient.ID)[0].Data
	for _, key := range []string{"accept_url", "reject_url"} {
		u, err := url.Parse(data[key])
		require.NoError(t, err)
		assert.Equal(t, "acme", u.Query().Get("tenant_id"), key)
	}
}

func TestCreateRequest_NoTenantOmitsTenantParam(t *testing.T) {
	f := newFixture()
	f.request(t)

	u, err := url.Parse(f.notifier.CallsFor(f.patient.ID)[0].Data["accept_url"])
	require.NoError(t, err)
	_, ok := u.Query()["tenant_id"]
	assert.False(t, ok)
}

func TestCreateRequest_DuplicatePendingConflicts(t *testing.T) {
	f := newFixture()
	f.request(t)

	_, err := f.svc.CreateRequest(context.Background(), f.caregiver.ID, connection.CreateInput{PatientEmail: f.patient.Email})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateRequest_AlreadyLinkedConflicts(t *testing.T) {
	f := newFixture()
	_, err := f.links.CreateLink(context.Background(), link.CreateInput{
		Kind: link.KindCaregiver, SubjectUserID: f.caregiver.ID, PatientUserID: f.patient.ID, CreatedByUserID: f.patient.ID,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateRequest(context.Background(), f.caregiver.ID, connection.CreateInput{PatientEmail: f.patient.Email})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateRequest_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateRequest(ctx, f.caregiver.ID, connection.CreateInput{PatientEmail: "not-an-email"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateRequest(ctx, f.caregiver.ID, connection.CreateInput{PatientEmail: "nobody@example.com"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.CreateRequest(ctx, f.caregiver.ID, connection.CreateInput{PatientEmail: f.family.Email})
	assert.ErrorIs(t, err, apperr.ErrNotFound, "non-patient users are not addressable")

	_, err = f.svc.CreateRequest(ctx, f.family.ID, connection.CreateInput{PatientEmail: f.patient.Email})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	long := strings.Repeat("x", 1001)
	_, err = f.svc.CreateRequest(ctx, f.caregiver.ID, connection.CreateInput{PatientEmail: f.patient.Email, Message: &long})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Empty(t, f.notifier.Calls())
}

func TestResolve_AcceptCreatesPermanentLink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.request(t)

	resolved, err := f.svc.Resolve(ctx, r.Token, true)
	require.NoError(t, err)
	assert.Equal(t, connection.StatusAccepted, resolved.Status)
	require.NotNil(t, resolved.RespondedAt)
	require.NotNil(t, resolved.LinkID)

	l, err := f.links.GetLink(ctx, link.KindCaregiver, *resolved.LinkID)
	require.NoError(t, err)
	assert.Equal(t, link.StatusActive, l.Status)
	assert.Equal(t, link.TypePermanent, l.LinkType)
	assert.Equal(t, f.caregiver.ID, l.SubjectUserID)
	require.NotNil(t, l.Relationship)
	assert.Equal(t, "nurse", *l.Relationship)

	ok, err := f.links.HasAuthorizingLink(ctx, link.KindCaregiver, f.caregiver.ID, f.patient.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	var outcome string
	for _, c := range f.notifier.CallsFor(f.caregiver.ID) {
		if c.TemplateID == notification.TemplateConnectionResolved {
			outcome = c.Data["outcome"]
		}
	}
	assert.Equal(t, "accepted", outcome)
}

func TestResolve_RejectCreatesNoLink(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.request(t)

	resolved, err := f.svc.Resolve(ctx, r.Token, false)
	require.NoError(t, err)
	assert.Equal(t, connection.StatusRejected, resolved.Status)
	assert.Nil(t, resolved.LinkID)

	ok, _ := f.links.HasAuthorizingLink(ctx, link.KindCaregiver, f.caregiver.ID, f.patient.ID)
	assert.False(t, ok)

	calls := f.notifier.CallsFor(f.caregiver.ID)
	require.Len(t, calls, 1)
	assert.Equal(t, "declined", calls[0].Data["outcome"])
	assert.Equal(t, "Ada Lovelace", calls[0].Data["patient_name"])
}

func TestResolve_TokenIsSingleUse(t *testing.T) {
	f := newFixture()
	r := f.request(t)
	_, err := f.svc.Resolve(context.Background(), r.Token, false)
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), r.Token, true)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestResolve_UnknownToken(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Resolve(context.Background(), "deadbeef", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Resolve(context.Background(), "", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolve_LinkConflictLeavesRequestPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.request(t)
	_, err := f.links.CreateLink(ctx, link.CreateInput{
		Kind: link.KindCaregiver, SubjectUserID: f.caregiver.ID, PatientUserID: f.patient.ID, CreatedByUserID: f.patient.ID,
	})
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, r.Token, true)
	require.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

	stored, ok := f.repo.Get(r.ID)
	require.True(t, ok)
	assert.Equal(t, connection.StatusPending, stored.Status)
	assert.Nil(t, stored.RespondedAt)
}

func TestListings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.request(t)

	pending, err := f.svc.ListPendingForPatient(ctx, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)

	_, err = f.svc.Resolve(ctx, r.Token, false)
	require.NoError(t, err)

	pending, _ = f.svc.ListPendingForPatient(ctx, f.patient.ID)
	assert.Empty(t, pending)

	sent, total, err := f.svc.ListForCaregiver(ctx, f.caregiver.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, connection.StatusRejected, sent[0].Status)
}
