package gitrepo

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want any
	}{
		{"auth", errors.New("authentication required"), &AuthError{}},
		{"bad creds", errors.New("invalid username or password"), &AuthError{}},
		{"missing", errors.New("repository does not exist"), &NotFoundError{}},
		{"timeout", errors.New("dial tcp: i/o timeout"), &NetworkTimeoutError{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyTransportError("clone", "https://example.com/x.git", tc.err)
			switch tc.want.(type) {
			case *AuthError:
				var ae *AuthError
				if !errors.As(got, &ae) {
					t.Fatalf("expected AuthError, got %T: %v", got, got)
				}
			case *NotFoundError:
				var ne *NotFoundError
				if !errors.As(got, &ne) {
					t.Fatalf("expected NotFoundError, got %T: %v", got, got)
				}
			case *NetworkTimeoutError:
				var te *NetworkTimeoutError
				if !errors.As(got, &te) {
					t.Fatalf("expected NetworkTimeoutError, got %T: %v", got, got)
				}
			}
			if !errors.Is(got, tc.err) {
				t.Fatal("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyUnknownErrorWraps(t *testing.T) {
	underlying := errors.New("something odd")
	got := ClassifyTransportError("fetch", "https://example.com/x.git", underlying)
	if !errors.Is(got, underlying) {
		t.Fatal("unknown error should still wrap the original")
	}
	wantPrefix := fmt.Sprintf("failed to fetch %s", "https://example.com/x.git")
	if got.Error()[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("unexpected message: %s", got.Error())
	}
}

func TestClassifyNil(t *testing.T) {
	if ClassifyTransportError("clone", "u", nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}
