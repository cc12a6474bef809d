package otp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateCodeZeroPadded(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			require.True(t, c >= '0' && c <= '9', "non-digit in %q", code)
		}
	}
}

func TestLedgerIssueVerifyConsumes(t *testing.T) {
	l := NewLedger(NewMemoryStore())
	ctx := context.Background()

	code, err := l.Issue(ctx, "9437987654")
	require.NoError(t, err)

	ok, err := l.Verify(ctx, "9437987654", code)
	require.NoError(t, err)
	require.True(t, ok)

	// Single use: the same code must not verify twice.
	ok, err = l.Verify(ctx, "9437987654", code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLedgerWrongCodeLeavesEntry(t *testing.T) {
	l := NewLedger(NewMemoryStore())
	ctx := context.Background()

	code, err := l.Issue(ctx, "9437123456")
	require.NoError(t, err)

	ok, _ := l.Verify(ctx, "9437123456", "000000")
	if code == "000000" {
		t.Skip("collided with the real code")
	}
	require.False(t, ok)

	// Entry survives the failed attempt; a retry with the right code works.
	ok, err = l.Verify(ctx, "9437123456", code)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLedgerIssueOverwrites(t *testing.T) {
	l := NewLedger(NewMemoryStore())
	ctx := context.Background()

	first, err := l.Issue(ctx, "5550001111")
	require.NoError(t, err)
	second, err := l.Issue(ctx, "5550001111")
	require.NoError(t, err)

	if first != second {
		ok, _ := l.Verify(ctx, "5550001111", first)
		require.False(t, ok, "stale code must not verify")
	}
	ok, err := l.Verify(ctx, "5550001111", second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", "123456", 10*time.Minute))

	current = current.Add(10*time.Minute + time.Second)
	ok, err := store.TakeIfMatch(ctx, "k", "123456")
	require.NoError(t, err)
	require.False(t, ok, "expired entry must not match")
}

func TestVerifyEmptyInputs(t *testing.T) {
	l := NewLedger(NewMemoryStore())
	ok, err := l.Verify(context.Background(), "", "123456")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = l.Verify(context.Background(), "555", "")
	require.NoError(t, err)
	require.False(t, ok)
}
