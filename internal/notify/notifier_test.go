package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/policy"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

type fakeGateway struct {
	rejected map[string]bool
	err      error
	// failAt cuts the batch short before the token at this index; 0 fails
	// before the first token.
	failAt int
	calls  int
}

func (f *fakeGateway) SendMulticast(_ context.Context, _ policy.Envelope, tokens []string) (BatchResponse, error) {
	f.calls++
	var br BatchResponse
	for i, t := range tokens {
		if f.err != nil && i == f.failAt {
			return br, f.err
		}
		r := TokenResult{Token: t, Status: 200}
		if f.rejected[t] {
			r.Status, r.Err, r.Stale = 404, errors.New("unregistered"), true
			br.FailureCount++
		} else {
			br.SuccessCount++
		}
		br.Responses = append(br.Responses, r)
	}
	return br, nil
}

// refusingTokens fails every token removal.
type refusingTokens struct{ *store.MemoryStore }

func (refusingTokens) RemoveUserTokens(context.Context, string, []string) error {
	return errors.New("write conflict")
}

func TestSendToUser_PrunesRejectedTokens(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.PutUser(entities.User{ID: "u1", FCMTokens: []string{"a", "b", "c"}})
	gw := &fakeGateway{rejected: map[string]bool{"b": true}}

	d, err := NewNotifier(st, gw).SendToUser(ctx, "u1", policy.Envelope{Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, d.Sent)
	assert.Equal(t, []string{"b"}, d.Pruned)

	u, _ := st.GetUser(ctx, "u1")
	assert.Equal(t, []string{"a", "c"}, u.FCMTokens)
}

func TestSendToUser_TransportFailurePrunesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.PutUser(entities.User{ID: "u1", FCMTokens: []string{"a", "b"}})
	gw := &fakeGateway{err: ErrTransport}

	_, err := NewNotifier(st, gw).SendToUser(ctx, "u1", policy.Envelope{})
	assert.ErrorIs(t, err, ErrTransport)

	u, _ := st.GetUser(ctx, "u1")
	assert.Equal(t, []string{"a", "b"}, u.FCMTokens)
}

func TestSendToUser_Skips(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.PutUser(entities.User{ID: "empty"})
	gw := &fakeGateway{}
	n := NewNotifier(st, gw)

	d, err := n.SendToUser(ctx, "ghost", policy.Envelope{})
	require.NoError(t, err)
	assert.Equal(t, "user_not_found", d.Skipped)

	d, err = n.SendToUser(ctx, "empty", policy.Envelope{})
	require.NoError(t, err)
	assert.Equal(t, "no_tokens", d.Skipped)
	assert.Zero(t, gw.calls)
}

func TestSendToUser_PruneFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.PutUser(entities.User{ID: "u1", FCMTokens: []string{"a", "b"}})
	gw := &fakeGateway{rejected: map[string]bool{"b": true}}

	d, err := NewNotifier(refusingTokens{st}, gw).SendToUser(ctx, "u1", policy.Envelope{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write conflict")
	assert.Empty(t, d.Pruned)
	assert.Equal(t, 1, d.Sent)
}

func TestSendToUser_PartialBatchStillPrunes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.PutUser(entities.User{ID: "u1", FCMTokens: []string{"a", "b", "c"}})
	gw := &fakeGateway{rejected: map[string]bool{"b": true}, err: ErrTransport, failAt: 2}

	d, err := NewNotifier(st, gw).SendToUser(ctx, "u1", policy.Envelope{})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, d.Sent)
	assert.Equal(t, []string{"b"}, d.Pruned)

	u, _ := st.GetUser(ctx, "u1")
	assert.Equal(t, []string{"a", "c"}, u.FCMTokens)
}

func TestSendToUser_AuthFailureKeepsTokens(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.PutUser(entities.User{ID: "u1", FCMTokens: []string{"a", "b", "c"}})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d, err := NewNotifier(st, testGateway(srv.URL)).SendToUser(ctx, "u1", policy.Envelope{})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Empty(t, d.Pruned)

	u, _ := st.GetUser(ctx, "u1")
	assert.Equal(t, []string{"a", "b", "c"}, u.FCMTokens)
}
