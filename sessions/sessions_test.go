package sessions_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/authgate/authgate/sessions"
	"github.com/authgate/authgate/sessions/memorystore"
)

func newManager(t *testing.T, opts ...sessions.ManagerOption) *sessions.Manager {
	t.Helper()
	store := memorystore.New()
	t.Cleanup(func() { _ = store.Close() })
	mgr, err := sessions.NewManager(store, opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestLoadMintsSessionAndCookieOnFirstContact(t *testing.T) {
	mgr := newManager(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	sess, err := mgr.Load(w, r)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("fresh session has no id")
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessions.DefaultCookieName {
		t.Fatalf("cookies = %v", cookies)
	}
	if cookies[0].Value != sess.ID {
		t.Fatal("cookie does not reference the session")
	}
	if !cookies[0].HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
}

func TestLoadRoundTripsMutations(t *testing.T) {
	mgr := newManager(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	sess, err := mgr.Load(w, r)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sess.AuthCode = "code-1"
	sess.UseClientCredentials = true
	if err := mgr.Save(context.Background(), sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r2 := httptest.NewRequest(http.MethodGet, "/y", nil)
	r2.AddCookie(w.Result().Cookies()[0])
	again, err := mgr.Load(httptest.NewRecorder(), r2)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ID != sess.ID || again.AuthCode != "code-1" || !again.UseClientCredentials {
		t.Fatalf("reloaded session = %+v", again)
	}
}

func TestLoadReplacesStaleCookie(t *testing.T) {
	mgr := newManager(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.AddCookie(&http.Cookie{Name: sessions.DefaultCookieName, Value: "gone"})

	sess, err := mgr.Load(w, r)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.ID == "gone" {
		t.Fatal("stale session id reused")
	}
	if len(w.Result().Cookies()) != 1 {
		t.Fatal("replacement cookie not issued")
	}
}

func TestDestroyRemovesSession(t *testing.T) {
	mgr := newManager(t)
	w := httptest.NewRecorder()
	sess, err := mgr.Load(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := mgr.Destroy(context.Background(), sess); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.AddCookie(w.Result().Cookies()[0])
	again, err := mgr.Load(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.ID == sess.ID {
		t.Fatal("destroyed session came back")
	}
}

func TestSecureManagerMintsCrossSiteCapableCookie(t *testing.T) {
	mgr := newManager(t, sessions.WithSecureCookies(true))
	w := httptest.NewRecorder()
	if _, err := mgr.Load(w, httptest.NewRequest(http.MethodGet, "/x", nil)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c := w.Result().Cookies()[0]
	// The cookie must ride the provider's cross-site form_post back to the
	// callback, which takes SameSite=None, and browsers only accept None
	// together with Secure.
	if !c.Secure {
		t.Fatal("secure manager issued a cookie without Secure")
	}
	if c.SameSite != http.SameSiteNoneMode {
		t.Fatalf("SameSite = %v, want None", c.SameSite)
	}
}

func TestInsecureManagerFallsBackToLax(t *testing.T) {
	mgr := newManager(t)
	w := httptest.NewRecorder()
	if _, err := mgr.Load(w, httptest.NewRequest(http.MethodGet, "/x", nil)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	c := w.Result().Cookies()[0]
	if c.Secure {
		t.Fatal("plain-HTTP manager issued a Secure cookie")
	}
	// None without Secure would be dropped at set time, so insecure mode
	// must not use it.
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("SameSite = %v, want Lax", c.SameSite)
	}
}

func TestSaveRequiresID(t *testing.T) {
	mgr := newManager(t)
	if err := mgr.Save(context.Background(), &sessions.Session{}); err == nil {
		t.Fatal("expected error saving id-less session")
	}
}
