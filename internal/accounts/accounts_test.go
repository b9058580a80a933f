package accounts

import (
	"context"
	"errors"
	"testing"
)

func TestCredentialsAuthenticated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{"enabled with token", Credentials{Enabled: true, AccessToken: "tok"}, true},
		{"disabled", Credentials{Enabled: false, AccessToken: "tok"}, false},
		{"error state", Credentials{Enabled: true, AccessToken: "tok", Error: "expired"}, false},
		{"no token", Credentials{Enabled: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.creds.Authenticated(); got != tt.want {
				t.Errorf("Authenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	t.Parallel()

	creds, err := NewStatic("tok", "cid").Credentials(context.Background())
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if !creds.Authenticated() || creds.ClientID != "cid" || creds.Service != ServiceName {
		t.Errorf("creds = %+v", creds)
	}

	if _, err := NewStatic("", "").Credentials(context.Background()); !errors.Is(err, ErrNoAccount) {
		t.Errorf("empty static source error = %v, want ErrNoAccount", err)
	}
}

func TestChain(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	failing := SourceFunc(func(context.Context) (Credentials, error) { return Credentials{}, boom })
	loggedOut := SourceFunc(func(context.Context) (Credentials, error) {
		return Credentials{Service: ServiceName, Error: "expired"}, nil
	})
	loggedIn := NewStatic("tok", "")

	t.Run("first authenticated wins", func(t *testing.T) {
		creds, err := Chain{failing, loggedOut, loggedIn}.Credentials(context.Background())
		if err != nil || creds.AccessToken != "tok" {
			t.Errorf("got %+v, %v", creds, err)
		}
	})

	t.Run("falls back to logged out status", func(t *testing.T) {
		creds, err := Chain{failing, loggedOut}.Credentials(context.Background())
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if creds.Authenticated() || creds.Error != "expired" {
			t.Errorf("creds = %+v", creds)
		}
	})

	t.Run("all failing", func(t *testing.T) {
		_, err := Chain{failing, NewStatic("", "")}.Credentials(context.Background())
		if !errors.Is(err, boom) || !errors.Is(err, ErrNoAccount) {
			t.Errorf("err = %v, want both causes joined", err)
		}
	})

	t.Run("empty chain", func(t *testing.T) {
		creds, err := Chain{}.Credentials(context.Background())
		if err != nil || creds.Authenticated() {
			t.Errorf("got %+v, %v", creds, err)
		}
	})
}
