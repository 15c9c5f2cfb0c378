package activitypub

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"

	"github.com/sorrelsocial/sorrel/internal/crypto"
	"github.com/sorrelsocial/sorrel/internal/httpsig"
	"github.com/sorrelsocial/sorrel/internal/httpx"
	"github.com/sorrelsocial/sorrel/internal/policy"
	"github.com/sorrelsocial/sorrel/internal/snowflake"
	"github.com/sorrelsocial/sorrel/models"
)

// remoteSigner is a remote actor fixture we hold the private key for, so
// tests can produce genuinely signed deliveries.
type remoteSigner struct {
	uri string
	doc map[string]any
	kp  *crypto.Keypair
}

func newRemoteSigner(t *testing.T, name, domain string) *remoteSigner {
	t.Helper()
	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(t, err)
	uri := "https://" + domain + "/users/" + name
	return &remoteSigner{
		uri: uri,
		kp:  kp,
		doc: map[string]any{
			"id":                uri,
			"type":              "Person",
			"preferredUsername": name,
			"inbox":             uri + "/inbox",
			"endpoints": map[string]any{
				"sharedInbox": "https://" + domain + "/inbox",
			},
			"publicKey": map[string]any{
				"id":           uri + "#main-key",
				"owner":        uri,
				"publicKeyPem": string(kp.PublicKey),
			},
		},
	}
}

// deliver builds a signed POST of the activity to the given inbox path.
func (s *remoteSigner) deliver(t *testing.T, path string, activity map[string]any) *http.Request {
	t.Helper()
	body, err := json.Marshal(activity)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "https://"+testDomain+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")

	_, priv, err := crypto.ParseRSAPrivateKey(s.kp.PrivateKey)
	require.NoError(t, err)
	require.NoError(t, httpsig.Sign(req, s.uri+"#main-key", priv, body))
	return req
}

func requireStatusError(t *testing.T, err error, code int) {
	t.Helper()
	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, code, se.Code)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestInboxRejectsUnsignedDelivery(t *testing.T) {
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	act := createActivity(signer.uri, "https://remote.example/notes/1", "hi")
	body, err := json.Marshal(act)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "https://"+testDomain+"/inbox", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")

	err = Inbox(env, httptest.NewRecorder(), req)
	requireStatusError(t, err, http.StatusUnauthorized)
}

func TestInboxRejectsWrongContentType(t *testing.T) {
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	req := signer.deliver(t, "/inbox", createActivity(signer.uri, "https://remote.example/notes/1", "hi"))
	req.Header.Set("Content-Type", "text/plain")

	err := Inbox(env, httptest.NewRecorder(), req)
	requireStatusError(t, err, http.StatusBadRequest)
}

func TestInboxRejectsTamperedBody(t *testing.T) {
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	act := createActivity(signer.uri, "https://remote.example/notes/1", "hi")
	req := signer.deliver(t, "/inbox", act)
	tampered, err := json.Marshal(createActivity(signer.uri, "https://remote.example/notes/1", "changed"))
	require.NoError(t, err)
	req.Body = httptest.NewRequest("POST", "/inbox", bytes.NewReader(tampered)).Body

	err = Inbox(env, httptest.NewRecorder(), req)
	requireStatusError(t, err, http.StatusUnauthorized)
}

func TestInboxAcceptsAndApplies(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	noteURI := "https://remote.example/notes/1"
	act := createActivity(signer.uri, noteURI, "hello sorrel")

	w := httptest.NewRecorder()
	require.NoError(Inbox(env, w, signer.deliver(t, "/inbox", act)))
	require.Equal(http.StatusOK, w.Code)

	post, err := models.NewPosts(db).FindByURI(noteURI)
	require.NoError(err)
	require.Equal("hello sorrel", post.Content)

	stored, err := models.NewActivities(db).FindByURI(act["id"].(string))
	require.NoError(err)
	require.Equal(models.ActivityApplied, stored.State)
}

func TestInboxDuplicateDeliveryIsAccepted(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	act := createActivity(signer.uri, "https://remote.example/notes/1", "hello")
	require.NoError(Inbox(env, httptest.NewRecorder(), signer.deliver(t, "/inbox", act)))

	w := httptest.NewRecorder()
	require.NoError(Inbox(env, w, signer.deliver(t, "/inbox", act)))
	require.Equal(http.StatusAccepted, w.Code)

	var count int64
	require.NoError(db.Model(&models.Post{}).Count(&count).Error)
	require.EqualValues(1, count)
}

func TestInboxRetriesFailedActivity(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	// a local actor with no account row behind it makes processing fail
	// after the inbox row is stored
	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(err)
	carol := &models.Actor{
		ID:        snowflake.Now(),
		Type:      "LocalPerson",
		Name:      "carol",
		Domain:    testDomain,
		URI:       "https://" + testDomain + "/users/carol",
		PublicKey: kp.PublicKey,
	}
	require.NoError(db.Create(carol).Error)

	follow := map[string]any{
		"id":     "https://remote.example/follows/retried",
		"type":   "Follow",
		"actor":  signer.uri,
		"object": carol.URI,
	}
	err = Inbox(env, httptest.NewRecorder(), signer.deliver(t, "/inbox", follow))
	require.Error(err)

	stored, err := models.NewActivities(db).FindByURI(follow["id"].(string))
	require.NoError(err)
	require.Equal(models.ActivityFailed, stored.State)

	// the account appears, and the peer redelivers the same activity;
	// the retry must be applied, not swallowed as a duplicate
	require.NoError(db.Create(&models.Account{
		ID:         snowflake.Now(),
		ActorID:    carol.ID,
		Email:      "carol@" + testDomain,
		PrivateKey: kp.PrivateKey,
	}).Error)

	w := httptest.NewRecorder()
	require.NoError(Inbox(env, w, signer.deliver(t, "/inbox", follow)))
	require.Equal(http.StatusOK, w.Code)

	stored, err = models.NewActivities(db).FindByURI(follow["id"].(string))
	require.NoError(err)
	require.Equal(models.ActivityApplied, stored.State)

	follower, err := models.NewActors(db).FindByURI(signer.uri)
	require.NoError(err)
	rel, err := models.NewRelationships(db).Find(follower.ID, carol.ID)
	require.NoError(err)
	require.True(rel.Following)
}

func TestInboxRejectsBlockedDomain(t *testing.T) {
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})
	require.NoError(t, models.NewFederation(db).BlockDomain("remote.example"))

	act := createActivity(signer.uri, "https://remote.example/notes/1", "hi")
	err := Inbox(env, httptest.NewRecorder(), signer.deliver(t, "/inbox", act))
	requireStatusError(t, err, http.StatusForbidden)
}

func TestInboxRejectsNonFederatedDomain(t *testing.T) {
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})
	require.NoError(t, models.NewFederation(db).AllowDomain("friendly.example"))

	act := createActivity(signer.uri, "https://remote.example/notes/1", "hi")
	err := Inbox(env, httptest.NewRecorder(), signer.deliver(t, "/inbox", act))
	requireStatusError(t, err, http.StatusForbidden)
}

func TestInboxRejectsMalformedActivity(t *testing.T) {
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	act := createActivity(signer.uri, "https://remote.example/notes/1", "hi")
	delete(act, "id")
	err := Inbox(env, httptest.NewRecorder(), signer.deliver(t, "/inbox", act))
	requireStatusError(t, err, http.StatusBadRequest)
}

func TestInboxRateLimits(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})
	env.Policy = policy.New(db, 1, 1)

	first := createActivity(signer.uri, "https://remote.example/notes/1", "one")
	require.NoError(Inbox(env, httptest.NewRecorder(), signer.deliver(t, "/inbox", first)))

	second := createActivity(signer.uri, "https://remote.example/notes/2", "two")
	err := Inbox(env, httptest.NewRecorder(), signer.deliver(t, "/inbox", second))
	requireStatusError(t, err, http.StatusTooManyRequests)
}

func TestInboxCapabilityDenied(t *testing.T) {
	require := require.New(t)
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})
	account := mockAccount(t, db, "bob")
	require.NoError(db.Model(&models.Account{}).Where("id = ?", account.ID).
		UpdateColumn("reject_likes", true).Error)

	like := map[string]any{
		"id":     "https://remote.example/likes/1",
		"type":   "Like",
		"actor":  signer.uri,
		"object": "https://" + testDomain + "/posts/1",
	}
	req := withURLParam(signer.deliver(t, "/users/bob/inbox", like), "name", "bob")
	err := Inbox(env, httptest.NewRecorder(), req)
	requireStatusError(t, err, http.StatusForbidden)
}

func TestInboxUnknownRecipient(t *testing.T) {
	db := setupTestDB(t)
	signer := newRemoteSigner(t, "alice", "remote.example")
	env := testEnv(t, db, map[string]map[string]any{signer.uri: signer.doc})

	act := createActivity(signer.uri, "https://remote.example/notes/1", "hi")
	req := withURLParam(signer.deliver(t, "/users/nobody/inbox", act), "name", "nobody")
	err := Inbox(env, httptest.NewRecorder(), req)
	requireStatusError(t, err, http.StatusNotFound)
}
