package account

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/railpass-blue/errs"
)

func TestRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/register_user" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"user_id":"8F3K2Q9Z","wallet_balance":100.0,"message":"ok"}`))
	}))
	defer srv.Close()

	reg, err := NewClient(srv.URL + "/").Register(context.Background())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg.Identity != "8F3K2Q9Z" || reg.Balance != 100 {
		t.Errorf("Unexpected registration %+v", reg)
	}
}

func TestRegisterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Register(context.Background())
	if !errs.Is(err, errs.CodeRegistrationFailure) {
		t.Fatalf("Expected REGISTRATION_FAILURE, got %v", err)
	}
}

func TestRegisterIncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"wallet_balance":100}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Register(context.Background()); !errs.Is(err, errs.CodeRegistrationFailure) {
		t.Fatalf("Expected REGISTRATION_FAILURE, got %v", err)
	}
}

func TestGetState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/wallet_balance" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "8F3K2Q9Z" {
			t.Errorf("Unexpected user_id %q", got)
		}
		w.Write([]byte(`{"user_id":"8F3K2Q9Z","wallet_balance":80.5,"journey_active":true}`))
	}))
	defer srv.Close()

	state, err := NewClient(srv.URL).GetState(context.Background(), "8F3K2Q9Z")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Balance != 80.5 || !state.ActivityFlag {
		t.Errorf("Unexpected state %+v", state)
	}
}

func TestGetStateFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"User not found"}`, http.StatusNotFound)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"wallet_balance":`))
		}},
		{"missing balance", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"journey_active":false}`))
		}},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(tc.handler)
		_, err := NewClient(srv.URL).GetState(context.Background(), "ABC")
		srv.Close()
		if !errs.Is(err, errs.CodeNetworkFailure) {
			t.Errorf("%s: expected NETWORK_FAILURE, got %v", tc.name, err)
		}
	}
}

func TestGetStateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond)).GetState(context.Background(), "ABC")
	if !errs.Is(err, errs.CodeNetworkFailure) {
		t.Fatalf("Expected NETWORK_FAILURE, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Timeout not honoured: took %v", time.Since(start))
	}
}

func TestIncrementBalanceIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/add_funds" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).IncrementBalance(context.Background(), "ABC")
	if !errs.Is(err, errs.CodeNetworkFailure) {
		t.Fatalf("Expected NETWORK_FAILURE, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected exactly one request, got %d", n)
	}
}

func TestIncrementBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id":"ABC","added_amount":50.0,"new_balance":150.0}`))
	}))
	defer srv.Close()

	balance, err := NewClient(srv.URL).IncrementBalance(context.Background(), "ABC")
	if err != nil {
		t.Fatalf("IncrementBalance failed: %v", err)
	}
	if balance != 150 {
		t.Errorf("Expected 150, got %v", balance)
	}
}

func TestEmptyIdentity(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if _, err := c.GetState(context.Background(), ""); !errs.Is(err, errs.CodeNoIdentity) {
		t.Errorf("Expected NO_IDENTITY from GetState, got %v", err)
	}
	if _, err := c.IncrementBalance(context.Background(), ""); !errs.Is(err, errs.CodeNoIdentity) {
		t.Errorf("Expected NO_IDENTITY from IncrementBalance, got %v", err)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{StatusCode: 404, Body: "User not found"}
	if err.Error() != "unexpected status 404: User not found" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if (&StatusError{StatusCode: 500}).Error() != "unexpected status 500" {
		t.Errorf("Unexpected bare message")
	}
}
