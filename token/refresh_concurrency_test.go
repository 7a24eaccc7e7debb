package token_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jrsteele09/go-authz-engine/token"
	"github.com/stretchr/testify/require"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	f := setupTestFixture(t)

	_, refreshToken, err := f.service.Issue(context.Background(), testSubjectID, testClaims())
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _, err := f.service.Refresh(context.Background(), refreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, token.ErrTokenReuseDetected) || errors.Is(err, token.ErrFamilyRevoked) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	require.Equal(t, 1, success, "expected exactly one refresh success")
	require.Equal(t, n-1, fail)
}
